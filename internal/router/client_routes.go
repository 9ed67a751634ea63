package router

import (
	"github.com/labstack/echo/v4"

	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
)

// ClientServer holds what the client server routes need.
type ClientServer struct {
	Pages   *handler.PagesHandler
	Ready   map[string]handler.Pinger
	Metrics *metrics.Metrics
}

// RegisterClientServer mounts the browser pages and the login callback.
func RegisterClientServer(e *echo.Echo, s ClientServer) {
	registerOps(e, s.Metrics, s.Ready)

	e.GET("/", s.Pages.Index)
	e.GET("/courses/:id", s.Pages.Course)
	e.POST("/courses", s.Pages.CreateCourse)
	e.POST("/courses/:id/lessons", s.Pages.CreateLesson)
	e.GET("/courses/:id/lessons/:lessonId", s.Pages.Lesson)
	e.POST("/courses/:id/lessons/:lessonId/delete", s.Pages.DeleteLesson)
	e.POST("/courses/:id/lessons/:lessonId/reviews", s.Pages.CreateReview)
	e.POST("/courses/:id/lessons/:lessonId/reviews/:reviewId/delete", s.Pages.DeleteReview)
	e.GET("/login", s.Pages.Login)
	e.GET("/login/oauth2/code/learntrack", s.Pages.Callback)
	e.GET("/logout", s.Pages.Logout)
}
