package repository

import (
	"context"
	"database/sql"

	"github.com/learntrack/learntrack/internal/model"
)

// ReviewRepo encapsulates the queries on `reviews`.
type ReviewRepo struct {
	db *sql.DB
}

func NewReviewRepo(db *sql.DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

const reviewColumns = "id, lesson_id, owner_id, title, content, created_at, updated_at"

func scanReview(row interface{ Scan(...any) error }, v *model.Review) error {
	return row.Scan(&v.ID, &v.LessonID, &v.OwnerID, &v.Title, &v.Content, &v.CreatedAt, &v.UpdatedAt)
}

func (r *ReviewRepo) Create(ctx context.Context, v *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reviews (lesson_id, owner_id, title, content) VALUES (?, ?, ?, ?)",
		v.LessonID, v.OwnerID, v.Title, v.Content)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	return translate(scanReview(r.db.QueryRowContext(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE id = ?", id), v))
}

func (r *ReviewRepo) GetByID(ctx context.Context, id int64) (*model.Review, error) {
	var v model.Review
	if err := scanReview(r.db.QueryRowContext(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE id = ?", id), &v); err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// ListByLesson returns the reviews of one lesson ordered by id.
func (r *ReviewRepo) ListByLesson(ctx context.Context, lessonID int64) ([]model.Review, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE lesson_id = ? ORDER BY id", lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Review, 0)
	for rows.Next() {
		var v model.Review
		if err := scanReview(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *ReviewRepo) Update(ctx context.Context, v *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reviews SET title = ?, content = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, v.Title, v.Content, v.ID)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

func (r *ReviewRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", id)
	if err != nil {
		return err
	}
	return affected(res)
}
