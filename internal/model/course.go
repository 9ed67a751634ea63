package model

import "time"

// Resource kinds used in authorization decisions and events.
const (
	KindCourse = "course"
	KindLesson = "lesson"
	KindReview = "review"
	KindUser   = "user"
)

// Course is a row in the `courses` table. OwnerID is the user id of the
// lecturer who created it.
type Course struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (c *Course) Kind() string         { return KindCourse }
func (c *Course) ResourceID() int64    { return c.ID }
func (c *Course) ResourceOwner() int64 { return c.OwnerID }

// Lesson belongs to exactly one course. Its owner is the course owner.
type Lesson struct {
	ID          int64     `json:"id"`
	CourseID    int64     `json:"courseId"`
	OwnerID     int64     `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (l *Lesson) Kind() string         { return KindLesson }
func (l *Lesson) ResourceID() int64    { return l.ID }
func (l *Lesson) ResourceOwner() int64 { return l.OwnerID }

// Review belongs to exactly one lesson. OwnerID is zero for reviews left
// anonymously.
type Review struct {
	ID        int64     `json:"id"`
	LessonID  int64     `json:"lessonId"`
	OwnerID   int64     `json:"ownerId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *Review) Kind() string         { return KindReview }
func (r *Review) ResourceID() int64    { return r.ID }
func (r *Review) ResourceOwner() int64 { return r.OwnerID }
