package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/client"
	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/utils"
)

const sessionCookie = "lt_session"

// SessionStore keeps client server sessions.
type SessionStore interface {
	Save(ctx context.Context, id string, s model.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}

// CourseAPI is the part of the resource server the pages use.
type CourseAPI interface {
	ListCourses(ctx context.Context, bearer string) ([]model.Course, error)
	GetCourse(ctx context.Context, bearer string, id int64) (*model.Course, error)
	ListLessons(ctx context.Context, bearer string, courseID int64) ([]model.Lesson, error)
	CreateCourse(ctx context.Context, bearer, name, description string) (*model.Course, error)
	GetLesson(ctx context.Context, bearer string, courseID, lessonID int64) (*model.Lesson, error)
	CreateLesson(ctx context.Context, bearer string, courseID int64, title, description string) (*model.Lesson, error)
	DeleteLesson(ctx context.Context, bearer string, courseID, lessonID int64) error
	ListReviews(ctx context.Context, bearer string, courseID, lessonID int64) ([]model.Review, error)
	CreateReview(ctx context.Context, bearer string, courseID, lessonID int64, title, content string) (*model.Review, error)
	DeleteReview(ctx context.Context, bearer string, courseID, lessonID, reviewID int64) error
}

// AuthAPI is the part of the authorization server the pages use.
type AuthAPI interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*client.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*client.Token, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// PagesHandler is the client server: a login flow plus a few pages
// rendered from resource server data.
type PagesHandler struct {
	Sessions     SessionStore
	Auth         AuthAPI
	API          CourseAPI
	SessionTTL   time.Duration
	SecureCookie bool
	Log          zerolog.Logger
	Now          func() time.Time
}

type indexPage struct {
	Title   string
	User    string
	Courses []model.Course
	Error   string
}

type coursePage struct {
	Title    string
	SignedIn bool
	Course   *model.Course
	Lessons  []model.Lesson
	Error    string
}

type lessonPage struct {
	Title    string
	SignedIn bool
	Course   *model.Course
	Lesson   *model.Lesson
	Reviews  []model.Review
	Error    string
}

func (h *PagesHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *PagesHandler) setCookie(c echo.Context, id string, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// session returns the browser's session, refreshing an expired access
// token when a refresh token is available. It returns nil for visitors.
func (h *PagesHandler) session(c echo.Context) (string, *model.Session) {
	ck, err := c.Cookie(sessionCookie)
	if err != nil || ck.Value == "" {
		return "", nil
	}
	ctx := c.Request().Context()
	sess, err := h.Sessions.Get(ctx, ck.Value)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.Log.Warn().Err(err).Msg("session lookup failed")
		}
		return "", nil
	}
	if sess.Authenticated(h.now()) || sess.RefreshToken == "" {
		return ck.Value, sess
	}
	tok, err := h.Auth.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		h.Log.Info().Err(err).Msg("session refresh failed")
		return ck.Value, sess
	}
	h.apply(sess, tok)
	if err := h.Sessions.Save(ctx, ck.Value, *sess, h.SessionTTL); err != nil {
		h.Log.Warn().Err(err).Msg("session save failed")
	}
	return ck.Value, sess
}

func (h *PagesHandler) apply(sess *model.Session, tok *client.Token) {
	sess.State = ""
	sess.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		sess.RefreshToken = tok.RefreshToken
	}
	sess.ExpiresAt = h.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if tok.IDToken != "" {
		// The ID token comes straight from the token endpoint; only its
		// subject is displayed.
		var claims jwt.RegisteredClaims
		if _, _, err := jwt.NewParser().ParseUnverified(tok.IDToken, &claims); err == nil {
			sess.Username = "user " + claims.Subject
		}
	}
}

func bearerOf(sess *model.Session, now time.Time) string {
	if sess != nil && sess.Authenticated(now) {
		return sess.AccessToken
	}
	return ""
}

// Index handles GET /.
func (h *PagesHandler) Index(c echo.Context) error {
	_, sess := h.session(c)
	page := indexPage{Title: "Courses"}
	if bearer := bearerOf(sess, h.now()); bearer != "" {
		page.User = sess.Username
		if page.User == "" {
			page.User = "signed in"
		}
	}
	courses, err := h.API.ListCourses(c.Request().Context(), bearerOf(sess, h.now()))
	if err != nil {
		h.Log.Warn().Err(err).Msg("list courses failed")
		page.Error = "Courses are unavailable right now."
	}
	page.Courses = courses
	if msg := c.QueryParam("error"); msg != "" {
		page.Error = msg
	}
	return c.Render(http.StatusOK, "index.html", page)
}

// Course handles GET /courses/:id.
func (h *PagesHandler) Course(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	_, sess := h.session(c)
	ctx, bearer := c.Request().Context(), bearerOf(sess, h.now())
	course, err := h.API.GetCourse(ctx, bearer, id)
	if err != nil {
		return h.apiError(c, err)
	}
	lessons, err := h.API.ListLessons(ctx, bearer, id)
	if err != nil {
		return h.apiError(c, err)
	}
	return c.Render(http.StatusOK, "course.html", coursePage{
		Title:    course.Name,
		SignedIn: bearer != "",
		Course:   course,
		Lessons:  lessons,
		Error:    c.QueryParam("error"),
	})
}

// Lesson handles GET /courses/:id/lessons/:lessonId.
func (h *PagesHandler) Lesson(c echo.Context) error {
	courseID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	lessonID, err := pathID(c, "lessonId")
	if err != nil {
		return err
	}
	_, sess := h.session(c)
	ctx, bearer := c.Request().Context(), bearerOf(sess, h.now())
	course, err := h.API.GetCourse(ctx, bearer, courseID)
	if err != nil {
		return h.apiError(c, err)
	}
	lesson, err := h.API.GetLesson(ctx, bearer, courseID, lessonID)
	if err != nil {
		return h.apiError(c, err)
	}
	reviews, err := h.API.ListReviews(ctx, bearer, courseID, lessonID)
	if err != nil {
		return h.apiError(c, err)
	}
	return c.Render(http.StatusOK, "lesson.html", lessonPage{
		Title:    lesson.Title,
		SignedIn: bearer != "",
		Course:   course,
		Lesson:   lesson,
		Reviews:  reviews,
		Error:    c.QueryParam("error"),
	})
}

// mutate runs call with the caller's access token and redirects to the
// page it returns. A 4xx from the resource server sends the browser back
// to back with the message shown.
func (h *PagesHandler) mutate(c echo.Context, back string, call func(ctx context.Context, bearer string) (string, error)) error {
	_, sess := h.session(c)
	bearer := bearerOf(sess, h.now())
	if bearer == "" {
		return c.Redirect(http.StatusSeeOther, "/login")
	}
	next, err := call(c.Request().Context(), bearer)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return c.Redirect(http.StatusSeeOther, back+"?error="+url.QueryEscape(apiErr.Message))
	}
	if err != nil {
		return h.apiError(c, err)
	}
	return c.Redirect(http.StatusSeeOther, next)
}

// CreateCourse handles POST /courses from the index form.
func (h *PagesHandler) CreateCourse(c echo.Context) error {
	return h.mutate(c, "/", func(ctx context.Context, bearer string) (string, error) {
		course, err := h.API.CreateCourse(ctx, bearer, c.FormValue("name"), c.FormValue("description"))
		if err != nil {
			return "", err
		}
		return "/courses/" + itoa(course.ID), nil
	})
}

// CreateLesson handles POST /courses/:id/lessons.
func (h *PagesHandler) CreateLesson(c echo.Context) error {
	courseID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	coursePath := "/courses/" + itoa(courseID)
	return h.mutate(c, coursePath, func(ctx context.Context, bearer string) (string, error) {
		lesson, err := h.API.CreateLesson(ctx, bearer, courseID, c.FormValue("title"), c.FormValue("description"))
		if err != nil {
			return "", err
		}
		return coursePath + "/lessons/" + itoa(lesson.ID), nil
	})
}

// DeleteLesson handles POST /courses/:id/lessons/:lessonId/delete.
func (h *PagesHandler) DeleteLesson(c echo.Context) error {
	courseID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	lessonID, err := pathID(c, "lessonId")
	if err != nil {
		return err
	}
	coursePath := "/courses/" + itoa(courseID)
	return h.mutate(c, coursePath+"/lessons/"+itoa(lessonID), func(ctx context.Context, bearer string) (string, error) {
		return coursePath, h.API.DeleteLesson(ctx, bearer, courseID, lessonID)
	})
}

// CreateReview handles POST /courses/:id/lessons/:lessonId/reviews.
func (h *PagesHandler) CreateReview(c echo.Context) error {
	courseID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	lessonID, err := pathID(c, "lessonId")
	if err != nil {
		return err
	}
	lessonPath := "/courses/" + itoa(courseID) + "/lessons/" + itoa(lessonID)
	return h.mutate(c, lessonPath, func(ctx context.Context, bearer string) (string, error) {
		_, err := h.API.CreateReview(ctx, bearer, courseID, lessonID, c.FormValue("title"), c.FormValue("content"))
		return lessonPath, err
	})
}

// DeleteReview handles POST /courses/:id/lessons/:lessonId/reviews/:reviewId/delete.
func (h *PagesHandler) DeleteReview(c echo.Context) error {
	courseID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	lessonID, err := pathID(c, "lessonId")
	if err != nil {
		return err
	}
	reviewID, err := pathID(c, "reviewId")
	if err != nil {
		return err
	}
	lessonPath := "/courses/" + itoa(courseID) + "/lessons/" + itoa(lessonID)
	return h.mutate(c, lessonPath, func(ctx context.Context, bearer string) (string, error) {
		return lessonPath, h.API.DeleteReview(ctx, bearer, courseID, lessonID, reviewID)
	})
}

func (h *PagesHandler) apiError(c echo.Context, err error) error {
	var apiErr *client.APIError
	status := http.StatusBadGateway
	msg := "The course service is unavailable."
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		status, msg = apiErr.Status, apiErr.Message
	} else {
		h.Log.Warn().Err(err).Msg("resource server call failed")
	}
	return c.Render(status, "error.html", errorPage{Title: "Error", Message: msg})
}

// Login handles GET /login by starting the authorization code flow.
func (h *PagesHandler) Login(c echo.Context) error {
	state, err := utils.RandomHex(16)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	if err := h.Sessions.Save(c.Request().Context(), id, model.Session{State: state}, 10*time.Minute); err != nil {
		return err
	}
	h.setCookie(c, id, int(h.SessionTTL/time.Second))
	return c.Redirect(http.StatusFound, h.Auth.AuthorizeURL(state))
}

// Callback handles the redirect back from the authorization server.
func (h *PagesHandler) Callback(c echo.Context) error {
	id, sess := h.session(c)
	if sess == nil || sess.State == "" || c.QueryParam("state") != sess.State {
		return c.Render(http.StatusBadRequest, "error.html", errorPage{Title: "Error", Message: "Login expired or state mismatch. Please sign in again."})
	}
	if e := c.QueryParam("error"); e != "" {
		_ = h.Sessions.Delete(c.Request().Context(), id)
		return c.Render(http.StatusForbidden, "error.html", errorPage{Title: "Error", Message: "Sign in was not completed: " + e})
	}
	tok, err := h.Auth.Exchange(c.Request().Context(), c.QueryParam("code"))
	if err != nil {
		h.Log.Warn().Err(err).Msg("code exchange failed")
		return c.Render(http.StatusBadGateway, "error.html", errorPage{Title: "Error", Message: "Sign in failed."})
	}
	h.apply(sess, tok)
	if err := h.Sessions.Save(c.Request().Context(), id, *sess, h.SessionTTL); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, "/")
}

// Logout handles GET /logout.
func (h *PagesHandler) Logout(c echo.Context) error {
	id, sess := h.session(c)
	if sess != nil {
		ctx := c.Request().Context()
		if sess.RefreshToken != "" {
			if err := h.Auth.Revoke(ctx, sess.RefreshToken); err != nil {
				h.Log.Warn().Err(err).Msg("refresh token revocation failed")
			}
		}
		if err := h.Sessions.Delete(ctx, id); err != nil {
			h.Log.Warn().Err(err).Msg("session delete failed")
		}
	}
	h.setCookie(c, "", -1)
	return c.Redirect(http.StatusFound, "/")
}
