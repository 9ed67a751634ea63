package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/utils"
)

// DemoPassword is the password of the seeded demo users.
const DemoPassword = "password"

var seedRoles = []struct {
	name        string
	authorities []string
}{
	{model.RoleUser, []string{model.AuthorityRead, model.AuthorityWrite}},
	{model.RoleLecturer, []string{model.AuthorityRead, model.AuthorityWrite}},
	{model.RoleAdmin, []string{model.AuthorityRead, model.AuthorityWrite, model.AuthorityDelete}},
}

var seedUsers = []struct{ username, role string }{
	{"admin", model.RoleAdmin},
	{"user", model.RoleUser},
	{"lecturer", model.RoleLecturer},
}

// Seed creates the standard authorities and roles. With withUsers it also
// creates the demo accounts admin, user and lecturer. Existing rows are
// left alone.
func (a *Accounts) Seed(ctx context.Context, withUsers bool) error {
	for _, name := range []string{model.AuthorityRead, model.AuthorityWrite, model.AuthorityDelete} {
		if _, err := a.roles.EnsureAuthority(ctx, name); err != nil {
			return fmt.Errorf("seed authority %s: %w", name, err)
		}
	}
	for _, sr := range seedRoles {
		role, err := a.roles.EnsureRole(ctx, sr.name)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", sr.name, err)
		}
		for _, auth := range sr.authorities {
			if err := a.roles.AddAuthority(ctx, role.ID, auth); err != nil {
				return fmt.Errorf("seed authority %s on %s: %w", auth, sr.name, err)
			}
		}
	}
	if !withUsers {
		return nil
	}

	for _, su := range seedUsers {
		_, err := a.users.GetByUsername(ctx, su.username)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("seed user %s: %w", su.username, err)
		}
		if _, err := a.Register(ctx, Registration{Username: su.username, Password: DemoPassword, Role: su.role}); err != nil &&
			!errors.Is(err, ErrUsernameTaken) {
			return fmt.Errorf("seed user %s: %w", su.username, err)
		}
	}
	a.log.Info().Msg("demo users seeded")
	return nil
}

// EnsureDefaultClient registers the fallback client when it does not exist.
func EnsureDefaultClient(ctx context.Context, clients ClientStore, dc config.DefaultClient, bcryptCost int, log zerolog.Logger) (*model.RegisteredClient, error) {
	existing, err := clients.GetByClientID(ctx, dc.ClientID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup default client: %w", err)
	}

	hash, err := utils.HashPassword(dc.ClientSecret, bcryptCost)
	if err != nil {
		return nil, err
	}
	c := &model.RegisteredClient{
		ID:                 uuid.NewString(),
		ClientID:           dc.ClientID,
		SecretHash:         hash,
		Name:               dc.ClientID,
		GrantTypes:         dc.ClientGrantTypes,
		RedirectURIs:       dc.ClientRedirectURIs,
		Scopes:             dc.ClientScopes,
		RequireConsent:     dc.ClientConsent,
		AccessTokenTTL:     dc.ClientAccessTTL,
		RefreshTokenTTL:    dc.ClientRefreshTTL,
		ReuseRefreshTokens: dc.ClientReuseRefresh,
	}
	if err := clients.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Registered concurrently by another instance.
			return clients.GetByClientID(ctx, dc.ClientID)
		}
		return nil, fmt.Errorf("create default client: %w", err)
	}
	log.Info().Str("client_id", c.ClientID).Strs("grant_types", c.GrantTypes).Msg("default client registered")
	return c, nil
}
