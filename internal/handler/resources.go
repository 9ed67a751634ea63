package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/middleware"
	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/queue"
	"github.com/learntrack/learntrack/internal/repository"
)

type CourseStore interface {
	Create(ctx context.Context, c *model.Course) error
	GetByID(ctx context.Context, id int64) (*model.Course, error)
	List(ctx context.Context) ([]model.Course, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, c *model.Course) error
	Delete(ctx context.Context, id int64) error
}

type LessonStore interface {
	Create(ctx context.Context, l *model.Lesson) error
	GetByID(ctx context.Context, id int64) (*model.Lesson, error)
	ListByCourse(ctx context.Context, courseID int64) ([]model.Lesson, error)
	Update(ctx context.Context, l *model.Lesson) error
	Delete(ctx context.Context, id int64) error
}

type ReviewStore interface {
	Create(ctx context.Context, v *model.Review) error
	GetByID(ctx context.Context, id int64) (*model.Review, error)
	ListByLesson(ctx context.Context, lessonID int64) ([]model.Review, error)
	Update(ctx context.Context, v *model.Review) error
	Delete(ctx context.Context, id int64) error
}

// ResourceHandler serves courses, lessons and reviews. Reads are public;
// every mutation goes through the Checker.
type ResourceHandler struct {
	Courses CourseStore
	Lessons LessonStore
	Reviews ReviewStore
	Checker *authz.Checker
	Events  queue.Publisher
	Log     zerolog.Logger
}

type courseCreate struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=4000"`
}

type courseUpdate struct {
	Name        *string `json:"name" validate:"omitnil,min=1,max=255"`
	Description *string `json:"description" validate:"omitnil,max=4000"`
}

type lessonCreate struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=4000"`
}

type lessonUpdate struct {
	Title       *string `json:"title" validate:"omitnil,min=1,max=255"`
	Description *string `json:"description" validate:"omitnil,max=4000"`
}

type reviewCreate struct {
	Title   string `json:"title" validate:"required,max=255"`
	Content string `json:"content" validate:"required,max=4000"`
}

type reviewUpdate struct {
	Title   *string `json:"title" validate:"omitnil,min=1,max=255"`
	Content *string `json:"content" validate:"omitnil,min=1,max=4000"`
}

func notFound(err error, kind string, id int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// publish sends an event without failing the request.
func (h *ResourceHandler) publish(c echo.Context, ev queue.ResourceEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), 2*time.Second)
	defer cancel()
	if err := h.Events.Publish(ctx, ev); err != nil {
		h.Log.Warn().Err(err).Str("event", ev.RoutingKey()).Msg("resource event dropped")
	}
}

func created(c echo.Context, location string, body any) error {
	c.Response().Header().Set(echo.HeaderLocation, location)
	return c.JSON(http.StatusCreated, body)
}

func courseURL(id int64) string { return "/api/v1/courses/" + strconv.FormatInt(id, 10) }

func lessonURL(courseID, id int64) string {
	return courseURL(courseID) + "/lessons/" + strconv.FormatInt(id, 10)
}

// ---- courses ----

func (h *ResourceHandler) course(c echo.Context) (*model.Course, error) {
	id, err := pathID(c, "courseId")
	if err != nil {
		return nil, err
	}
	course, err := h.Courses.GetByID(c.Request().Context(), id)
	return course, notFound(err, model.KindCourse, id)
}

func (h *ResourceHandler) ListCourses(c echo.Context) error {
	items, err := h.Courses.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ResourceHandler) CountCourses(c echo.Context) error {
	n, err := h.Courses.Count(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"count": n})
}

func (h *ResourceHandler) GetCourse(c echo.Context) error {
	course, err := h.course(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, course)
}

// CreateCourse makes the caller the owner of the new course.
func (h *ResourceHandler) CreateCourse(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	if err := h.Checker.CheckCreate(ctx, p, model.KindCourse); err != nil {
		return err
	}
	var req courseCreate
	if err := bind(c, &req); err != nil {
		return err
	}
	course := &model.Course{OwnerID: p.UserID, Name: req.Name, Description: req.Description}
	if err := h.Courses.Create(ctx, course); err != nil {
		return err
	}
	h.publish(c, queue.NewResourceEvent(queue.EventCreated, course, 0, p))
	return created(c, courseURL(course.ID), course)
}

// UpdateCourse applies the fields present in the body.
func (h *ResourceHandler) UpdateCourse(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	course, err := h.course(c)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckMutationAllowed(ctx, p, authz.ActionUpdate, course); err != nil {
		return err
	}
	var req courseUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Name != nil {
		course.Name = *req.Name
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if err := h.Courses.Update(ctx, course); err != nil {
		return notFound(err, model.KindCourse, course.ID)
	}
	updated, err := h.Courses.GetByID(ctx, course.ID)
	if err != nil {
		return notFound(err, model.KindCourse, course.ID)
	}
	h.publish(c, queue.NewResourceEvent(queue.EventUpdated, updated, 0, p))
	return c.JSON(http.StatusOK, updated)
}

func (h *ResourceHandler) DeleteCourse(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	course, err := h.course(c)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckMutationAllowed(ctx, p, authz.ActionDelete, course); err != nil {
		return err
	}
	if err := h.Courses.Delete(ctx, course.ID); err != nil {
		return notFound(err, model.KindCourse, course.ID)
	}
	h.publish(c, queue.NewResourceEvent(queue.EventDeleted, course, 0, p))
	return c.NoContent(http.StatusNoContent)
}

// ---- lessons ----

// lesson loads the lesson named in the path and requires it to belong to
// the course in the path.
func (h *ResourceHandler) lesson(c echo.Context) (*model.Course, *model.Lesson, error) {
	course, err := h.course(c)
	if err != nil {
		return nil, nil, err
	}
	id, err := pathID(c, "lessonId")
	if err != nil {
		return nil, nil, err
	}
	lesson, err := h.Lessons.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, nil, notFound(err, model.KindLesson, id)
	}
	if lesson.CourseID != course.ID {
		return nil, nil, &NotFoundError{Kind: model.KindLesson, ID: id}
	}
	return course, lesson, nil
}

func (h *ResourceHandler) ListLessons(c echo.Context) error {
	course, err := h.course(c)
	if err != nil {
		return err
	}
	items, err := h.Lessons.ListByCourse(c.Request().Context(), course.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ResourceHandler) GetLesson(c echo.Context) error {
	_, lesson, err := h.lesson(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lesson)
}

// CreateLesson requires the create role and ownership of the course. The
// lesson is owned by the course owner.
func (h *ResourceHandler) CreateLesson(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	course, err := h.course(c)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckCreateUnder(ctx, p, model.KindLesson, course); err != nil {
		return err
	}
	var req lessonCreate
	if err := bind(c, &req); err != nil {
		return err
	}
	lesson := &model.Lesson{CourseID: course.ID, OwnerID: course.OwnerID, Title: req.Title, Description: req.Description}
	if err := h.Lessons.Create(ctx, lesson); err != nil {
		return notFound(err, model.KindCourse, course.ID)
	}
	h.publish(c, queue.NewResourceEvent(queue.EventCreated, lesson, course.ID, p))
	return created(c, lessonURL(course.ID, lesson.ID), lesson)
}

func (h *ResourceHandler) UpdateLesson(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	_, lesson, err := h.lesson(c)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckMutationAllowed(ctx, p, authz.ActionUpdate, lesson); err != nil {
		return err
	}
	var req lessonUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Title != nil {
		lesson.Title = *req.Title
	}
	if req.Description != nil {
		lesson.Description = *req.Description
	}
	if err := h.Lessons.Update(ctx, lesson); err != nil {
		return notFound(err, model.KindLesson, lesson.ID)
	}
	updated, err := h.Lessons.GetByID(ctx, lesson.ID)
	if err != nil {
		return notFound(err, model.KindLesson, lesson.ID)
	}
	h.publish(c, queue.NewResourceEvent(queue.EventUpdated, updated, updated.CourseID, p))
	return c.JSON(http.StatusOK, updated)
}

func (h *ResourceHandler) DeleteLesson(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	_, lesson, err := h.lesson(c)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckMutationAllowed(ctx, p, authz.ActionDelete, lesson); err != nil {
		return err
	}
	if err := h.Lessons.Delete(ctx, lesson.ID); err != nil {
		return notFound(err, model.KindLesson, lesson.ID)
	}
	h.publish(c, queue.NewResourceEvent(queue.EventDeleted, lesson, lesson.CourseID, p))
	return c.NoContent(http.StatusNoContent)
}

// ---- reviews ----

func (h *ResourceHandler) review(c echo.Context) (*model.Lesson, *model.Review, error) {
	_, lesson, err := h.lesson(c)
	if err != nil {
		return nil, nil, err
	}
	id, err := pathID(c, "reviewId")
	if err != nil {
		return nil, nil, err
	}
	review, err := h.Reviews.GetByID(c.Request().Context(), id)
	if err != nil {
		return nil, nil, notFound(err, model.KindReview, id)
	}
	if review.LessonID != lesson.ID {
		return nil, nil, &NotFoundError{Kind: model.KindReview, ID: id}
	}
	return lesson, review, nil
}

func (h *ResourceHandler) ListReviews(c echo.Context) error {
	_, lesson, err := h.lesson(c)
	if err != nil {
		return err
	}
	items, err := h.Reviews.ListByLesson(c.Request().Context(), lesson.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ResourceHandler) GetReview(c echo.Context) error {
	_, review, err := h.review(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, review)
}

// CreateReview makes the caller the owner. Anonymous reviews, when the
// policy allows them, are owned by nobody.
func (h *ResourceHandler) CreateReview(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	course, lesson, err := h.lesson(c)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckCreate(ctx, p, model.KindReview); err != nil {
		return err
	}
	var req reviewCreate
	if err := bind(c, &req); err != nil {
		return err
	}
	review := &model.Review{LessonID: lesson.ID, OwnerID: p.UserID, Title: req.Title, Content: req.Content}
	if err := h.Reviews.Create(ctx, review); err != nil {
		return notFound(err, model.KindLesson, lesson.ID)
	}
	h.publish(c, queue.NewResourceEvent(queue.EventCreated, review, lesson.ID, p))
	return created(c, lessonURL(course.ID, lesson.ID)+"/reviews/"+strconv.FormatInt(review.ID, 10), review)
}

func (h *ResourceHandler) UpdateReview(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	_, review, err := h.review(c)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckMutationAllowed(ctx, p, authz.ActionUpdate, review); err != nil {
		return err
	}
	var req reviewUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Title != nil {
		review.Title = *req.Title
	}
	if req.Content != nil {
		review.Content = *req.Content
	}
	if err := h.Reviews.Update(ctx, review); err != nil {
		return notFound(err, model.KindReview, review.ID)
	}
	updated, err := h.Reviews.GetByID(ctx, review.ID)
	if err != nil {
		return notFound(err, model.KindReview, review.ID)
	}
	h.publish(c, queue.NewResourceEvent(queue.EventUpdated, updated, updated.LessonID, p))
	return c.JSON(http.StatusOK, updated)
}

func (h *ResourceHandler) DeleteReview(c echo.Context) error {
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	_, review, err := h.review(c)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckMutationAllowed(ctx, p, authz.ActionDelete, review); err != nil {
		return err
	}
	if err := h.Reviews.Delete(ctx, review.ID); err != nil {
		return notFound(err, model.KindReview, review.ID)
	}
	h.publish(c, queue.NewResourceEvent(queue.EventDeleted, review, review.LessonID, p))
	return c.NoContent(http.StatusNoContent)
}
