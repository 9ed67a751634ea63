package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/utils"
)

// Accounts is the credential store: registration, password checks and
// role management.
type Accounts struct {
	users UserStore
	roles RoleStore
	cost  int
	log   zerolog.Logger
}

func NewAccounts(users UserStore, roles RoleStore, bcryptCost int, log zerolog.Logger) *Accounts {
	return &Accounts{users: users, roles: roles, cost: bcryptCost, log: log}
}

// Registration is a self-service sign-up request.
type Registration struct {
	Username string
	Password string
	Role     string // "LECTURER" or "ROLE_LECTURER"
}

// NormalizeRole upper-cases name and adds the ROLE_ prefix when missing.
func NormalizeRole(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(name, "ROLE_") {
		name = "ROLE_" + name
	}
	return name
}

// Register creates a user holding exactly one role.
func (a *Accounts) Register(ctx context.Context, r Registration) (*model.User, error) {
	username := strings.TrimSpace(r.Username)
	if _, err := a.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	role, err := a.roles.GetByName(ctx, NormalizeRole(r.Role))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup role: %w", err)
	}

	hash, err := utils.HashPassword(r.Password, a.cost)
	if err != nil {
		return nil, err
	}
	u := &model.User{Username: username, PasswordHash: hash, Roles: []model.Role{*role}}
	if err := a.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	a.log.Info().Int64("user_id", u.ID).Str("role", role.Name).Msg("user registered")
	return u, nil
}

// Authenticate verifies a username and password.
func (a *Accounts) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	u, err := a.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword("", password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// User loads a user with roles.
func (a *Accounts) User(ctx context.Context, id int64) (*model.User, error) {
	u, err := a.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Rename changes a username.
func (a *Accounts) Rename(ctx context.Context, id int64, username string) (*model.User, error) {
	err := a.users.UpdateUsername(ctx, id, username)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrUsernameTaken
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("rename user: %w", err)
	}
	return a.User(ctx, id)
}

// Roles lists every role with its authorities.
func (a *Accounts) Roles(ctx context.Context) ([]model.Role, error) {
	return a.roles.List(ctx)
}

// GrantRole adds a role to a user and returns the updated user.
func (a *Accounts) GrantRole(ctx context.Context, userID, roleID int64) (*model.User, error) {
	if err := a.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	if _, err := a.User(ctx, userID); err != nil {
		return nil, err
	}
	if err := a.users.AddRole(ctx, userID, roleID); err != nil {
		return nil, fmt.Errorf("add role: %w", err)
	}
	a.log.Info().Int64("user_id", userID).Int64("role_id", roleID).Msg("role granted")
	return a.User(ctx, userID)
}

// RevokeRole removes a role from a user and returns the updated user.
func (a *Accounts) RevokeRole(ctx context.Context, userID, roleID int64) (*model.User, error) {
	if err := a.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	err := a.users.RemoveRole(ctx, userID, roleID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("remove role: %w", err)
	}
	a.log.Info().Int64("user_id", userID).Int64("role_id", roleID).Msg("role revoked")
	return a.User(ctx, userID)
}

// AddAuthority grants an authority to a role.
func (a *Accounts) AddAuthority(ctx context.Context, roleID int64, authority string) (*model.Role, error) {
	if err := a.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	err := a.roles.AddAuthority(ctx, roleID, strings.ToUpper(authority))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAuthorityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("add authority: %w", err)
	}
	return a.roles.GetByID(ctx, roleID)
}

// RemoveAuthority revokes an authority from a role.
func (a *Accounts) RemoveAuthority(ctx context.Context, roleID int64, authority string) (*model.Role, error) {
	if err := a.requireRole(ctx, roleID); err != nil {
		return nil, err
	}
	err := a.roles.RemoveAuthority(ctx, roleID, strings.ToUpper(authority))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrAuthorityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remove authority: %w", err)
	}
	return a.roles.GetByID(ctx, roleID)
}

func (a *Accounts) requireRole(ctx context.Context, roleID int64) error {
	_, err := a.roles.GetByID(ctx, roleID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrRoleNotFound
	}
	return err
}
