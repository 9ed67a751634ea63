package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/learntrack/learntrack/internal/model"
)

// UserRepo persists users and their role assignments.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Create inserts the user and its role links in one transaction. The
// password must already be hashed. u.ID is set on success.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?)",
		strings.TrimSpace(u.Username), u.PasswordHash)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, role := range u.Roles {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO users_roles (user_id, role_id) VALUES (?, ?)", id, role.ID); err != nil {
			return translate(err)
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	u.ID = id
	return nil
}

// GetByUsername fetches a user with its roles.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx,
		"SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username = ? LIMIT 1",
		strings.TrimSpace(username))
}

// GetByID fetches a user with its roles.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx,
		"SELECT id, username, password_hash, created_at, updated_at FROM users WHERE id = ? LIMIT 1", id)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	if err := r.DB.QueryRowContext(ctx, q, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	roles, err := loadUserRoles(ctx, r.DB, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

// UpdateUsername renames a user. A taken name yields ErrDuplicate.
func (r *UserRepo) UpdateUsername(ctx context.Context, id int64, username string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET username = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		strings.TrimSpace(username), id)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// AddRole links a role to a user. Adding a role twice is a no-op.
func (r *UserRepo) AddRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO users_roles (user_id, role_id) VALUES (?, ?)", userID, roleID)
	return translate(err)
}

// RemoveRole unlinks a role from a user.
func (r *UserRepo) RemoveRole(ctx context.Context, userID, roleID int64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM users_roles WHERE user_id = ? AND role_id = ?", userID, roleID)
	if err != nil {
		return err
	}
	return affected(res)
}

func loadUserRoles(ctx context.Context, q queryer, userID int64) ([]model.Role, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT r.id, r.name FROM roles r
		 JOIN users_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ? ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Role, 0, 2)
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}
