package repository

import (
	"context"
	"database/sql"

	"github.com/learntrack/learntrack/internal/model"
)

// TokenRepo persists refresh tokens by their SHA-256 hash.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, t *model.RefreshToken) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, client_id, scope, token_hash, expires_at) VALUES (?, ?, ?, ?, ?)",
		t.UserID, t.ClientID, t.Scope, t.TokenHash, t.ExpiresAt.UTC())
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// GetByHash returns the token row regardless of its state; callers check
// model.RefreshToken.Active.
func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, client_id, scope, token_hash, expires_at, revoked_at, created_at
		 FROM refresh_tokens WHERE token_hash = ? LIMIT 1`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.ClientID, &t.Scope, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return &t, nil
}

// RevokeByHash marks an active token as revoked. It returns ErrNotFound
// when no unrevoked token matches, so of two concurrent rotations only
// one succeeds.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE token_hash = ? AND revoked_at IS NULL",
		tokenHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every active token of the user.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID int64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = UTC_TIMESTAMP() WHERE user_id = ? AND revoked_at IS NULL",
		userID)
	return err
}
