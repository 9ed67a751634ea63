package repository

import (
	"context"
	"database/sql"

	"github.com/learntrack/learntrack/internal/model"
)

// CourseRepo encapsulates the queries on `courses`. Ownership is not
// enforced here; callers run the authorization check first.
type CourseRepo struct {
	db *sql.DB
}

func NewCourseRepo(db *sql.DB) *CourseRepo {
	return &CourseRepo{db: db}
}

const courseColumns = "id, owner_id, name, description, created_at, updated_at"

func scanCourse(row interface{ Scan(...any) error }, c *model.Course) error {
	return row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
}

// Create inserts a course and reloads it so defaulted timestamps are
// populated.
func (r *CourseRepo) Create(ctx context.Context, c *model.Course) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO courses (owner_id, name, description) VALUES (?, ?, ?)",
		c.OwnerID, c.Name, c.Description)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	return translate(scanCourse(r.db.QueryRowContext(ctx,
		"SELECT "+courseColumns+" FROM courses WHERE id = ?", id), c))
}

// GetByID returns ErrNotFound for an unknown id.
func (r *CourseRepo) GetByID(ctx context.Context, id int64) (*model.Course, error) {
	var c model.Course
	if err := scanCourse(r.db.QueryRowContext(ctx,
		"SELECT "+courseColumns+" FROM courses WHERE id = ?", id), &c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// List returns all courses ordered by id.
func (r *CourseRepo) List(ctx context.Context) ([]model.Course, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+courseColumns+" FROM courses ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Course, 0)
	for rows.Next() {
		var c model.Course
		if err := scanCourse(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of courses.
func (r *CourseRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses").Scan(&n)
	return n, err
}

// Update writes name and description of an existing course.
func (r *CourseRepo) Update(ctx context.Context, c *model.Course) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE courses SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, c.Name, c.Description, c.ID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// Delete removes the course; lessons and reviews cascade.
func (r *CourseRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM courses WHERE id = ?", id)
	if err != nil {
		return err
	}
	return affected(res)
}
