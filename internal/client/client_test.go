package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learntrack/learntrack/internal/model"
)

func TestResourceClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/courses":
			_ = json.NewEncoder(w).Encode([]model.Course{{ID: 1, Name: "Go"}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/courses/1/lessons":
			_ = json.NewEncoder(w).Encode([]model.Lesson{{ID: 3, CourseID: 1, Title: "Channels"}})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/courses":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			var in map[string]string
			_ = json.NewDecoder(r.Body).Decode(&in)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(model.Course{ID: 2, OwnerID: 7, Name: in["name"]})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"course not found"}`))
		}
	}))
	defer srv.Close()

	c := NewResourceClient(srv.URL, srv.Client(), zerolog.Nop())
	ctx := context.Background()

	courses, err := c.ListCourses(ctx, "")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Go", courses[0].Name)

	lessons, err := c.ListLessons(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, "Channels", lessons[0].Title)

	created, err := c.CreateCourse(ctx, "tok", "Rust", "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.OwnerID)

	_, err = c.CreateCourse(ctx, "", "Rust", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "authentication required", apiErr.Message)

	_, err = c.GetCourse(ctx, "", 99)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestResourceClientLessonsAndReviews(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		var in map[string]string
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&in)
		}
		switch r.Method + " " + r.URL.Path {
		case "GET /api/v1/courses/1/lessons/3":
			_ = json.NewEncoder(w).Encode(model.Lesson{ID: 3, CourseID: 1, Title: "Channels"})
		case "POST /api/v1/courses/1/lessons":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(model.Lesson{ID: 4, CourseID: 1, Title: in["title"], Description: in["description"]})
		case "GET /api/v1/courses/1/lessons/3/reviews":
			_ = json.NewEncoder(w).Encode([]model.Review{{ID: 5, LessonID: 3, Title: "Great"}})
		case "POST /api/v1/courses/1/lessons/3/reviews":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(model.Review{ID: 6, LessonID: 3, Title: in["title"], Content: in["content"]})
		case "DELETE /api/v1/courses/1/lessons/3/reviews/5", "DELETE /api/v1/courses/1/lessons/3":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"access denied"}`))
		}
	}))
	defer srv.Close()

	c := NewResourceClient(srv.URL, srv.Client(), zerolog.Nop())
	ctx := context.Background()

	lesson, err := c.GetLesson(ctx, "", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "Channels", lesson.Title)

	created, err := c.CreateLesson(ctx, "tok", 1, "Select", "multiplexing")
	require.NoError(t, err)
	assert.Equal(t, "multiplexing", created.Description)

	reviews, err := c.ListReviews(ctx, "", 1, 3)
	require.NoError(t, err)
	require.Len(t, reviews, 1)

	review, err := c.CreateReview(ctx, "tok", 1, 3, "Nice", "clear")
	require.NoError(t, err)
	assert.Equal(t, "clear", review.Content)

	require.NoError(t, c.DeleteReview(ctx, "tok", 1, 3, 5))
	require.NoError(t, c.DeleteLesson(ctx, "tok", 1, 3))

	err = c.DeleteReview(ctx, "tok", 1, 3, 6)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "access denied", apiErr.Message)
	assert.Len(t, calls, 7)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewResourceClient(srv.URL, srv.Client(), zerolog.Nop())
	for range 5 {
		_, err := c.ListCourses(context.Background(), "")
		require.Error(t, err)
	}
	_, err := c.ListCourses(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(5), hits.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewResourceClient(srv.URL, srv.Client(), zerolog.Nop())
	for range 10 {
		_, err := c.GetCourse(context.Background(), "", 1)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
}

func TestAuthClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "learntrack" || secret != "s%3Ac" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		require.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/oauth2/token":
			if r.PostForm.Get("grant_type") == "authorization_code" && r.PostForm.Get("code") != "good" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code is invalid"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":60,"refresh_token":"rt"}`))
		case "/oauth2/revoke":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := NewAuthClient(AuthConfig{
		BaseURL: srv.URL + "/", ClientID: "learntrack", ClientSecret: "s:c",
		RedirectURI: "http://client.test/cb", Scopes: []string{"openid", "read"},
	}, srv.Client(), zerolog.Nop())
	ctx := context.Background()

	u, err := url.Parse(c.AuthorizeURL("st"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth2/authorize", u.Path)
	assert.Equal(t, "openid read", u.Query().Get("scope"))
	assert.Equal(t, "st", u.Query().Get("state"))

	tok, err := c.Exchange(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)

	_, err = c.Exchange(ctx, "bad")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_grant: code is invalid", apiErr.Message)

	tok, err = c.Refresh(ctx, "rt")
	require.NoError(t, err)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.NoError(t, c.Revoke(ctx, "rt"))
}
