package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
	"github.com/learntrack/learntrack/internal/middleware"
)

// ResourceServer holds what the resource server routes need.
type ResourceServer struct {
	Resources *handler.ResourceHandler
	Verifier  middleware.TokenVerifier
	Cache     *middleware.ResponseCache // nil disables caching
	// AnonymousReviews lets review creation through without a token; the
	// policy still decides.
	AnonymousReviews bool
	Ready            map[string]handler.Pinger
	Metrics          *metrics.Metrics
	Log              zerolog.Logger
}

const reviewsPath = "/api/v1/courses/:courseId/lessons/:lessonId/reviews"

// skipFor bypasses mw for one route.
func skipFor(mw echo.MiddlewareFunc, method, path string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		wrapped := mw(next)
		return func(c echo.Context) error {
			if c.Request().Method == method && c.Path() == path {
				return next(c)
			}
			return wrapped(c)
		}
	}
}

// RegisterResourceServer mounts the course, lesson and review API. Reads
// are public, every other method needs a verified bearer token.
func RegisterResourceServer(e *echo.Echo, s ResourceServer) {
	registerOps(e, s.Metrics, s.Ready)

	requireAuth := middleware.RequireAuthentication(middleware.SafeMethods...)
	if s.AnonymousReviews {
		requireAuth = skipFor(requireAuth, http.MethodPost, reviewsPath)
	}
	g := e.Group("/api/v1",
		middleware.Authenticate(s.Verifier, s.Log, s.Metrics.VerifyFailures),
		requireAuth,
		s.Cache.Middleware(),
	)
	h := s.Resources

	g.GET("/courses", h.ListCourses)
	g.GET("/courses/count", h.CountCourses)
	g.POST("/courses", h.CreateCourse)
	g.GET("/courses/:courseId", h.GetCourse)
	g.PUT("/courses/:courseId", h.UpdateCourse)
	g.PATCH("/courses/:courseId", h.UpdateCourse)
	g.DELETE("/courses/:courseId", h.DeleteCourse)

	l := g.Group("/courses/:courseId/lessons")
	l.GET("", h.ListLessons)
	l.POST("", h.CreateLesson)
	l.GET("/:lessonId", h.GetLesson)
	l.PUT("/:lessonId", h.UpdateLesson)
	l.PATCH("/:lessonId", h.UpdateLesson)
	l.DELETE("/:lessonId", h.DeleteLesson)

	r := l.Group("/:lessonId/reviews")
	r.GET("", h.ListReviews)
	r.POST("", h.CreateReview)
	r.GET("/:reviewId", h.GetReview)
	r.PUT("/:reviewId", h.UpdateReview)
	r.PATCH("/:reviewId", h.UpdateReview)
	r.DELETE("/:reviewId", h.DeleteReview)
}
