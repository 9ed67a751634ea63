package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/learntrack/learntrack/internal/model"
)

// ClientRepo persists OAuth2 client registrations.
type ClientRepo struct{ DB *sql.DB }

func NewClientRepo(db *sql.DB) *ClientRepo { return &ClientRepo{DB: db} }

// GetByClientID looks a registration up by its public client id.
func (r *ClientRepo) GetByClientID(ctx context.Context, clientID string) (*model.RegisteredClient, error) {
	var (
		c                             model.RegisteredClient
		grants, redirects, scopes     string
		accessSeconds, refreshSeconds int64
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, client_id, secret_hash, name, grant_types, redirect_uris, scopes,
		        require_consent, access_token_ttl_seconds, refresh_token_ttl_seconds,
		        reuse_refresh_tokens, created_at
		 FROM oauth_clients WHERE client_id = ?`, clientID).
		Scan(&c.ID, &c.ClientID, &c.SecretHash, &c.Name, &grants, &redirects, &scopes,
			&c.RequireConsent, &accessSeconds, &refreshSeconds, &c.ReuseRefreshTokens, &c.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	c.GrantTypes = strings.Fields(grants)
	c.RedirectURIs = strings.Fields(redirects)
	c.Scopes = strings.Fields(scopes)
	c.AccessTokenTTL = time.Duration(accessSeconds) * time.Second
	c.RefreshTokenTTL = time.Duration(refreshSeconds) * time.Second
	return &c, nil
}

// Create inserts a registration. A taken client id yields ErrDuplicate.
func (r *ClientRepo) Create(ctx context.Context, c *model.RegisteredClient) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO oauth_clients (id, client_id, secret_hash, name, grant_types, redirect_uris,
		        scopes, require_consent, access_token_ttl_seconds, refresh_token_ttl_seconds,
		        reuse_refresh_tokens)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.SecretHash, c.Name,
		strings.Join(c.GrantTypes, " "), strings.Join(c.RedirectURIs, " "), strings.Join(c.Scopes, " "),
		c.RequireConsent, int64(c.AccessTokenTTL/time.Second), int64(c.RefreshTokenTTL/time.Second),
		c.ReuseRefreshTokens)
	return translate(err)
}
