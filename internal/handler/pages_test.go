package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learntrack/learntrack/internal/client"
	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/repository"
)

type fakeAuth struct {
	exchanged []string
	refreshed []string
	revoked   []string
	token     client.Token
}

func (f *fakeAuth) AuthorizeURL(state string) string {
	return "http://auth.test/oauth2/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeAuth) Exchange(_ context.Context, code string) (*client.Token, error) {
	f.exchanged = append(f.exchanged, code)
	if code == "bad" {
		return nil, &client.APIError{Status: http.StatusBadRequest, Message: "invalid_grant"}
	}
	tok := f.token
	return &tok, nil
}

func (f *fakeAuth) Refresh(_ context.Context, rt string) (*client.Token, error) {
	f.refreshed = append(f.refreshed, rt)
	return &client.Token{AccessToken: "refreshed", RefreshToken: rt, ExpiresIn: 3600}, nil
}

func (f *fakeAuth) Revoke(_ context.Context, rt string) error {
	f.revoked = append(f.revoked, rt)
	return nil
}

type fakeAPI struct {
	bearers []string
	courses []model.Course
	reviews []model.Review
	deleted []string
	err     error
}

func (f *fakeAPI) ListCourses(_ context.Context, bearer string) ([]model.Course, error) {
	f.bearers = append(f.bearers, bearer)
	return f.courses, f.err
}

func (f *fakeAPI) GetCourse(_ context.Context, bearer string, id int64) (*model.Course, error) {
	f.bearers = append(f.bearers, bearer)
	for _, c := range f.courses {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, &client.APIError{Status: http.StatusNotFound, Message: "course not found"}
}

func (f *fakeAPI) ListLessons(_ context.Context, bearer string, _ int64) ([]model.Lesson, error) {
	f.bearers = append(f.bearers, bearer)
	return []model.Lesson{{ID: 7, Title: "Channels"}}, nil
}

func (f *fakeAPI) CreateCourse(_ context.Context, bearer, name, _ string) (*model.Course, error) {
	f.bearers = append(f.bearers, bearer)
	if name == "" {
		return nil, &client.APIError{Status: http.StatusBadRequest, Message: "name: must not be blank"}
	}
	return &model.Course{ID: 42, Name: name}, nil
}

func (f *fakeAPI) GetLesson(_ context.Context, bearer string, courseID, lessonID int64) (*model.Lesson, error) {
	f.bearers = append(f.bearers, bearer)
	if lessonID != 7 {
		return nil, &client.APIError{Status: http.StatusNotFound, Message: "lesson not found"}
	}
	return &model.Lesson{ID: 7, CourseID: courseID, Title: "Channels"}, nil
}

func (f *fakeAPI) CreateLesson(_ context.Context, bearer string, courseID int64, title, _ string) (*model.Lesson, error) {
	f.bearers = append(f.bearers, bearer)
	if title == "" {
		return nil, &client.APIError{Status: http.StatusBadRequest, Message: "title: must not be blank"}
	}
	return &model.Lesson{ID: 8, CourseID: courseID, Title: title}, nil
}

func (f *fakeAPI) DeleteLesson(_ context.Context, bearer string, _, lessonID int64) error {
	f.bearers = append(f.bearers, bearer)
	f.deleted = append(f.deleted, "lesson "+strconv.FormatInt(lessonID, 10))
	return nil
}

func (f *fakeAPI) ListReviews(_ context.Context, bearer string, _, _ int64) ([]model.Review, error) {
	f.bearers = append(f.bearers, bearer)
	return f.reviews, nil
}

func (f *fakeAPI) CreateReview(_ context.Context, bearer string, _, lessonID int64, title, content string) (*model.Review, error) {
	f.bearers = append(f.bearers, bearer)
	r := model.Review{ID: int64(len(f.reviews) + 1), LessonID: lessonID, Title: title, Content: content}
	f.reviews = append(f.reviews, r)
	return &r, nil
}

func (f *fakeAPI) DeleteReview(_ context.Context, bearer string, _, _, reviewID int64) error {
	f.bearers = append(f.bearers, bearer)
	if reviewID == 99 {
		return &client.APIError{Status: http.StatusForbidden, Message: "access denied"}
	}
	f.deleted = append(f.deleted, "review "+strconv.FormatInt(reviewID, 10))
	return nil
}

type pagesFixture struct {
	e        *echo.Echo
	h        *PagesHandler
	auth     *fakeAuth
	api      *fakeAPI
	sessions *repository.SessionStore
	now      time.Time
}

func newPages(t *testing.T) *pagesFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &pagesFixture{
		auth:     &fakeAuth{token: client.Token{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600}},
		api:      &fakeAPI{courses: []model.Course{{ID: 1, Name: "Go"}}},
		sessions: repository.NewSessionStore(rdb),
		now:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.h = &PagesHandler{
		Sessions:   f.sessions,
		Auth:       f.auth,
		API:        f.api,
		SessionTTL: time.Hour,
		Log:        zerolog.Nop(),
		Now:        func() time.Time { return f.now },
	}
	e := echo.New()
	e.Renderer = NewTemplates()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	e.GET("/", f.h.Index)
	e.GET("/courses/:id", f.h.Course)
	e.POST("/courses", f.h.CreateCourse)
	e.POST("/courses/:id/lessons", f.h.CreateLesson)
	e.GET("/courses/:id/lessons/:lessonId", f.h.Lesson)
	e.POST("/courses/:id/lessons/:lessonId/delete", f.h.DeleteLesson)
	e.POST("/courses/:id/lessons/:lessonId/reviews", f.h.CreateReview)
	e.POST("/courses/:id/lessons/:lessonId/reviews/:reviewId/delete", f.h.DeleteReview)
	e.GET("/login", f.h.Login)
	e.GET("/login/oauth2/code/learntrack", f.h.Callback)
	e.GET("/logout", f.h.Logout)
	f.e = e
	return f
}

func (f *pagesFixture) get(path, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *pagesFixture) post(path, session string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if session != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func sessionFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

// signIn runs the login redirect and callback and returns the session id.
func (f *pagesFixture) signIn(t *testing.T) string {
	t.Helper()
	rec := f.get("/login", "")
	require.Equal(t, http.StatusFound, rec.Code)
	id := sessionFrom(t, rec)
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	rec = f.get("/login/oauth2/code/learntrack?code=abc&state="+state, id)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	return id
}

func TestPagesLoginFlow(t *testing.T) {
	f := newPages(t)

	rec := f.get("/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in")
	assert.Equal(t, []string{""}, f.api.bearers)

	id := f.signIn(t)
	assert.Equal(t, []string{"abc"}, f.auth.exchanged)

	sess, err := f.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "access", sess.AccessToken)
	assert.Empty(t, sess.State)

	rec = f.get("/", id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign out")
	assert.Equal(t, "access", f.api.bearers[len(f.api.bearers)-1])

	rec = f.get("/logout", id)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, []string{"refresh"}, f.auth.revoked)
	_, err = f.sessions.Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPagesCallbackRejectsBadState(t *testing.T) {
	f := newPages(t)
	rec := f.get("/login", "")
	id := sessionFrom(t, rec)

	assert.Equal(t, http.StatusBadRequest, f.get("/login/oauth2/code/learntrack?code=abc&state=forged", id).Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/login/oauth2/code/learntrack?code=abc&state=x", "").Code)
	assert.Empty(t, f.auth.exchanged)
}

func TestPagesRefreshesExpiredSession(t *testing.T) {
	f := newPages(t)
	id := f.signIn(t)

	f.now = f.now.Add(2 * time.Hour)
	require.Equal(t, http.StatusOK, f.get("/", id).Code)
	assert.Equal(t, []string{"refresh"}, f.auth.refreshed)
	assert.Equal(t, "refreshed", f.api.bearers[len(f.api.bearers)-1])
}

func TestPagesCourse(t *testing.T) {
	f := newPages(t)

	rec := f.get("/courses/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Channels")

	rec = f.get("/courses/9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "course not found")

	f.api.err = errors.New("connection refused")
	rec = f.get("/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")
}

func TestPagesCreateCourse(t *testing.T) {
	f := newPages(t)
	post := func(session string, form url.Values) *httptest.ResponseRecorder {
		return f.post("/courses", session, form)
	}

	rec := post("", url.Values{"name": {"Go"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	id := f.signIn(t)
	rec = post(id, url.Values{"name": {"Go"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/courses/42", rec.Header().Get(echo.HeaderLocation))

	rec = post(id, url.Values{"name": {""}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderLocation), "/?error="))
}

func TestPagesLessonsAndReviews(t *testing.T) {
	f := newPages(t)
	f.api.reviews = []model.Review{{ID: 1, LessonID: 7, Title: "Great", Content: "clear"}}

	rec := f.get("/courses/1/lessons/7", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Channels")
	assert.Contains(t, rec.Body.String(), "Great")
	assert.NotContains(t, rec.Body.String(), "Write a review")
	assert.Equal(t, http.StatusNotFound, f.get("/courses/1/lessons/9", "").Code)

	rec = f.post("/courses/1/lessons/7/reviews", "", url.Values{"title": {"Nice"}, "content": {"ok"}})
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	id := f.signIn(t)
	rec = f.get("/courses/1/lessons/7", id)
	assert.Contains(t, rec.Body.String(), "Write a review")
	assert.Contains(t, rec.Body.String(), "/courses/1/lessons/7/reviews/1/delete")

	rec = f.post("/courses/1/lessons", id, url.Values{"title": {"Select"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/courses/1/lessons/8", rec.Header().Get(echo.HeaderLocation))
	rec = f.post("/courses/1/lessons", id, url.Values{"title": {""}})
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderLocation), "/courses/1?error="))

	rec = f.post("/courses/1/lessons/7/reviews", id, url.Values{"title": {"Nice"}, "content": {"ok"}})
	assert.Equal(t, "/courses/1/lessons/7", rec.Header().Get(echo.HeaderLocation))
	require.Len(t, f.api.reviews, 2)

	rec = f.post("/courses/1/lessons/7/reviews/99/delete", id, nil)
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "/courses/1/lessons/7", loc.Path)
	assert.Equal(t, "access denied", loc.Query().Get("error"))

	rec = f.post("/courses/1/lessons/7/reviews/1/delete", id, nil)
	assert.Equal(t, "/courses/1/lessons/7", rec.Header().Get(echo.HeaderLocation))
	rec = f.post("/courses/1/lessons/7/delete", id, nil)
	assert.Equal(t, "/courses/1", rec.Header().Get(echo.HeaderLocation))
	assert.Equal(t, []string{"review 1", "lesson 7"}, f.api.deleted)
	assert.Contains(t, f.api.bearers, "access")
}
