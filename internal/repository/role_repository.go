package repository

import (
	"context"
	"database/sql"

	"github.com/learntrack/learntrack/internal/model"
)

// RoleRepo persists roles, authorities and the link between them.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// GetByName returns the role with its authorities.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	return r.getOne(ctx, "SELECT id, name FROM roles WHERE name = ?", name)
}

// GetByID returns the role with its authorities.
func (r *RoleRepo) GetByID(ctx context.Context, id int64) (*model.Role, error) {
	return r.getOne(ctx, "SELECT id, name FROM roles WHERE id = ?", id)
}

func (r *RoleRepo) getOne(ctx context.Context, q string, arg any) (*model.Role, error) {
	var role model.Role
	if err := r.DB.QueryRowContext(ctx, q, arg).Scan(&role.ID, &role.Name); err != nil {
		return nil, translate(err)
	}
	auths, err := r.authorities(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Authorities = auths
	return &role, nil
}

// List returns every role ordered by id.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name FROM roles ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Role, 0, 4)
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Authorities, err = r.authorities(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EnsureRole creates the role if missing and returns it.
func (r *RoleRepo) EnsureRole(ctx context.Context, name string) (*model.Role, error) {
	if _, err := r.DB.ExecContext(ctx, "INSERT IGNORE INTO roles (name) VALUES (?)", name); err != nil {
		return nil, err
	}
	return r.GetByName(ctx, name)
}

// EnsureAuthority creates the authority if missing and returns it.
func (r *RoleRepo) EnsureAuthority(ctx context.Context, name string) (*model.Authority, error) {
	if _, err := r.DB.ExecContext(ctx, "INSERT IGNORE INTO authorities (name) VALUES (?)", name); err != nil {
		return nil, err
	}
	var a model.Authority
	if err := r.DB.QueryRowContext(ctx, "SELECT id, name FROM authorities WHERE name = ?", name).
		Scan(&a.ID, &a.Name); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// AddAuthority grants an existing authority to a role.
func (r *RoleRepo) AddAuthority(ctx context.Context, roleID int64, authority string) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT IGNORE INTO roles_authorities (role_id, authority_id)
		 SELECT ?, a.id FROM authorities a WHERE a.name = ?`, roleID, authority)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the authority is unknown or the link already exists.
		var exists int
		err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM authorities WHERE name = ?", authority).Scan(&exists)
		return translate(err)
	}
	return nil
}

// RemoveAuthority revokes an authority from a role.
func (r *RoleRepo) RemoveAuthority(ctx context.Context, roleID int64, authority string) error {
	res, err := r.DB.ExecContext(ctx,
		`DELETE ra FROM roles_authorities ra
		 JOIN authorities a ON a.id = ra.authority_id
		 WHERE ra.role_id = ? AND a.name = ?`, roleID, authority)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *RoleRepo) authorities(ctx context.Context, roleID int64) ([]model.Authority, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT a.id, a.name FROM authorities a
		 JOIN roles_authorities ra ON ra.authority_id = a.id
		 WHERE ra.role_id = ? ORDER BY a.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Authority, 0, 3)
	for rows.Next() {
		var a model.Authority
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
