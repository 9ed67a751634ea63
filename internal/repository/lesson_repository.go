package repository

import (
	"context"
	"database/sql"

	"github.com/learntrack/learntrack/internal/model"
)

// LessonRepo encapsulates the queries on `lessons`.
type LessonRepo struct {
	db *sql.DB
}

func NewLessonRepo(db *sql.DB) *LessonRepo {
	return &LessonRepo{db: db}
}

const lessonColumns = "id, course_id, owner_id, title, description, created_at, updated_at"

func scanLesson(row interface{ Scan(...any) error }, l *model.Lesson) error {
	return row.Scan(&l.ID, &l.CourseID, &l.OwnerID, &l.Title, &l.Description, &l.CreatedAt, &l.UpdatedAt)
}

func (r *LessonRepo) Create(ctx context.Context, l *model.Lesson) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO lessons (course_id, owner_id, title, description) VALUES (?, ?, ?, ?)",
		l.CourseID, l.OwnerID, l.Title, l.Description)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	return translate(scanLesson(r.db.QueryRowContext(ctx,
		"SELECT "+lessonColumns+" FROM lessons WHERE id = ?", id), l))
}

func (r *LessonRepo) GetByID(ctx context.Context, id int64) (*model.Lesson, error) {
	var l model.Lesson
	if err := scanLesson(r.db.QueryRowContext(ctx,
		"SELECT "+lessonColumns+" FROM lessons WHERE id = ?", id), &l); err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

// ListByCourse returns the lessons of one course ordered by id.
func (r *LessonRepo) ListByCourse(ctx context.Context, courseID int64) ([]model.Lesson, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+lessonColumns+" FROM lessons WHERE course_id = ? ORDER BY id", courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Lesson, 0)
	for rows.Next() {
		var l model.Lesson
		if err := scanLesson(rows, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LessonRepo) Update(ctx context.Context, l *model.Lesson) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lessons SET title = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, l.Title, l.Description, l.ID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (r *LessonRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM lessons WHERE id = ?", id)
	if err != nil {
		return err
	}
	return affected(res)
}
