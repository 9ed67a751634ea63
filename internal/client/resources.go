package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/model"
)

// ResourceClient calls the resource server's course API.
type ResourceClient struct {
	base string
	t    *transport
}

func NewResourceClient(baseURL string, hc *http.Client, log zerolog.Logger) *ResourceClient {
	return &ResourceClient{base: strings.TrimRight(baseURL, "/") + "/api/v1", t: newTransport("resource-server", hc, log)}
}

func (c *ResourceClient) ListCourses(ctx context.Context, bearer string) ([]model.Course, error) {
	var out []model.Course
	err := c.t.doJSON(ctx, http.MethodGet, c.base+"/courses", bearer, nil, &out)
	return out, err
}

func (c *ResourceClient) GetCourse(ctx context.Context, bearer string, id int64) (*model.Course, error) {
	var out model.Course
	if err := c.t.doJSON(ctx, http.MethodGet, c.base+"/courses/"+strconv.FormatInt(id, 10), bearer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ResourceClient) ListLessons(ctx context.Context, bearer string, courseID int64) ([]model.Lesson, error) {
	var out []model.Lesson
	err := c.t.doJSON(ctx, http.MethodGet, c.base+"/courses/"+strconv.FormatInt(courseID, 10)+"/lessons", bearer, nil, &out)
	return out, err
}

// CreateCourse requires a bearer token of a lecturer or admin.
func (c *ResourceClient) CreateCourse(ctx context.Context, bearer, name, description string) (*model.Course, error) {
	in := map[string]string{"name": name, "description": description}
	var out model.Course
	if err := c.t.doJSON(ctx, http.MethodPost, c.base+"/courses", bearer, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ResourceClient) lessonURL(courseID, lessonID int64) string {
	return c.base + "/courses/" + strconv.FormatInt(courseID, 10) + "/lessons/" + strconv.FormatInt(lessonID, 10)
}

func (c *ResourceClient) GetLesson(ctx context.Context, bearer string, courseID, lessonID int64) (*model.Lesson, error) {
	var out model.Lesson
	if err := c.t.doJSON(ctx, http.MethodGet, c.lessonURL(courseID, lessonID), bearer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateLesson requires the bearer to own the course.
func (c *ResourceClient) CreateLesson(ctx context.Context, bearer string, courseID int64, title, description string) (*model.Lesson, error) {
	in := map[string]string{"title": title, "description": description}
	var out model.Lesson
	url := c.base + "/courses/" + strconv.FormatInt(courseID, 10) + "/lessons"
	if err := c.t.doJSON(ctx, http.MethodPost, url, bearer, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ResourceClient) DeleteLesson(ctx context.Context, bearer string, courseID, lessonID int64) error {
	return c.t.doJSON(ctx, http.MethodDelete, c.lessonURL(courseID, lessonID), bearer, nil, nil)
}

func (c *ResourceClient) ListReviews(ctx context.Context, bearer string, courseID, lessonID int64) ([]model.Review, error) {
	var out []model.Review
	err := c.t.doJSON(ctx, http.MethodGet, c.lessonURL(courseID, lessonID)+"/reviews", bearer, nil, &out)
	return out, err
}

func (c *ResourceClient) CreateReview(ctx context.Context, bearer string, courseID, lessonID int64, title, content string) (*model.Review, error) {
	in := map[string]string{"title": title, "content": content}
	var out model.Review
	if err := c.t.doJSON(ctx, http.MethodPost, c.lessonURL(courseID, lessonID)+"/reviews", bearer, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ResourceClient) DeleteReview(ctx context.Context, bearer string, courseID, lessonID, reviewID int64) error {
	url := c.lessonURL(courseID, lessonID) + "/reviews/" + strconv.FormatInt(reviewID, 10)
	return c.t.doJSON(ctx, http.MethodDelete, url, bearer, nil, nil)
}
