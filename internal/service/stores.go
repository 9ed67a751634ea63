// Package service holds the authorization server's business logic:
// accounts, roles, client registrations and the OAuth2 grants.
package service

import (
	"context"
	"time"

	"github.com/learntrack/learntrack/internal/model"
)

// UserStore persists users. Implementations return repository.ErrNotFound
// and repository.ErrDuplicate.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	UpdateUsername(ctx context.Context, id int64, username string) error
	AddRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

// RoleStore persists roles and authorities.
type RoleStore interface {
	GetByName(ctx context.Context, name string) (*model.Role, error)
	GetByID(ctx context.Context, id int64) (*model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	EnsureRole(ctx context.Context, name string) (*model.Role, error)
	EnsureAuthority(ctx context.Context, name string) (*model.Authority, error)
	AddAuthority(ctx context.Context, roleID int64, authority string) error
	RemoveAuthority(ctx context.Context, roleID int64, authority string) error
}

// RefreshTokenStore persists hashed refresh tokens. RevokeByHash returns
// repository.ErrNotFound unless it revoked an active token.
type RefreshTokenStore interface {
	StoreRefresh(ctx context.Context, t *model.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID int64) error
}

// ClientStore persists OAuth2 client registrations.
type ClientStore interface {
	GetByClientID(ctx context.Context, clientID string) (*model.RegisteredClient, error)
	Create(ctx context.Context, c *model.RegisteredClient) error
}

// CodeStore keeps single-use authorization codes.
type CodeStore interface {
	Save(ctx context.Context, code string, ac model.AuthorizationCode, ttl time.Duration) error
	Consume(ctx context.Context, code string) (*model.AuthorizationCode, error)
}
