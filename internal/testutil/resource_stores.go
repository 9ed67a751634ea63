package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/repository"
)

// Resources holds courses, lessons and reviews in memory. Deletes
// cascade like the MySQL foreign keys do.
type Resources struct {
	mu      sync.Mutex
	next    int64
	courses map[int64]model.Course
	lessons map[int64]model.Lesson
	reviews map[int64]model.Review
}

func NewResources() *Resources {
	return &Resources{
		courses: map[int64]model.Course{},
		lessons: map[int64]model.Lesson{},
		reviews: map[int64]model.Review{},
	}
}

func (s *Resources) Courses() *Courses { return &Courses{s} }
func (s *Resources) Lessons() *Lessons { return &Lessons{s} }
func (s *Resources) Reviews() *Reviews { return &Reviews{s} }

func (s *Resources) id() (int64, time.Time) {
	s.next++
	return s.next, time.Now().UTC().Truncate(time.Second)
}

type Courses struct{ s *Resources }

func (r *Courses) Create(_ context.Context, c *model.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.ID, c.CreatedAt = r.s.id()
	c.UpdatedAt = c.CreatedAt
	r.s.courses[c.ID] = *c
	return nil
}

func (r *Courses) GetByID(_ context.Context, id int64) (*model.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *Courses) List(_ context.Context) ([]model.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Course, 0, len(r.s.courses))
	for id := int64(1); id <= r.s.next; id++ {
		if c, ok := r.s.courses[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *Courses) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.courses)), nil
}

func (r *Courses) Update(_ context.Context, c *model.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.courses[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Name, cur.Description, cur.UpdatedAt = c.Name, c.Description, time.Now().UTC()
	r.s.courses[c.ID] = cur
	return nil
}

func (r *Courses) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.courses[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.courses, id)
	for lid, l := range r.s.lessons {
		if l.CourseID == id {
			r.s.deleteLesson(lid)
		}
	}
	return nil
}

func (s *Resources) deleteLesson(id int64) {
	delete(s.lessons, id)
	for rid, v := range s.reviews {
		if v.LessonID == id {
			delete(s.reviews, rid)
		}
	}
}

type Lessons struct{ s *Resources }

func (r *Lessons) Create(_ context.Context, l *model.Lesson) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.courses[l.CourseID]; !ok {
		return repository.ErrNotFound
	}
	l.ID, l.CreatedAt = r.s.id()
	l.UpdatedAt = l.CreatedAt
	r.s.lessons[l.ID] = *l
	return nil
}

func (r *Lessons) GetByID(_ context.Context, id int64) (*model.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lessons[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r *Lessons) ListByCourse(_ context.Context, courseID int64) ([]model.Lesson, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Lesson, 0)
	for id := int64(1); id <= r.s.next; id++ {
		if l, ok := r.s.lessons[id]; ok && l.CourseID == courseID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *Lessons) Update(_ context.Context, l *model.Lesson) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.lessons[l.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Title, cur.Description, cur.UpdatedAt = l.Title, l.Description, time.Now().UTC()
	r.s.lessons[l.ID] = cur
	return nil
}

func (r *Lessons) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lessons[id]; !ok {
		return repository.ErrNotFound
	}
	r.s.deleteLesson(id)
	return nil
}

type Reviews struct{ s *Resources }

func (r *Reviews) Create(_ context.Context, v *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.lessons[v.LessonID]; !ok {
		return repository.ErrNotFound
	}
	v.ID, v.CreatedAt = r.s.id()
	v.UpdatedAt = v.CreatedAt
	r.s.reviews[v.ID] = *v
	return nil
}

func (r *Reviews) GetByID(_ context.Context, id int64) (*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.reviews[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *Reviews) ListByLesson(_ context.Context, lessonID int64) ([]model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Review, 0)
	for id := int64(1); id <= r.s.next; id++ {
		if v, ok := r.s.reviews[id]; ok && v.LessonID == lessonID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *Reviews) Update(_ context.Context, v *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.reviews[v.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Title, cur.Content, cur.UpdatedAt = v.Title, v.Content, time.Now().UTC()
	r.s.reviews[v.ID] = cur
	return nil
}

func (r *Reviews) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.reviews, id)
	return nil
}
