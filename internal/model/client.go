package model

import (
	"slices"
	"time"
)

// Grant types a client registration may enable.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
)

// RegisteredClient is an OAuth2 client registration stored in
// `oauth_clients`. List fields are persisted as space separated strings.
type RegisteredClient struct {
	ID                 string        // oauth_clients.id (uuid)
	ClientID           string        // oauth_clients.client_id (unique)
	SecretHash         string        // oauth_clients.secret_hash (bcrypt)
	Name               string        // oauth_clients.name
	GrantTypes         []string      // oauth_clients.grant_types
	RedirectURIs       []string      // oauth_clients.redirect_uris
	Scopes             []string      // oauth_clients.scopes
	RequireConsent     bool          // oauth_clients.require_consent
	AccessTokenTTL     time.Duration // oauth_clients.access_token_ttl_seconds
	RefreshTokenTTL    time.Duration // oauth_clients.refresh_token_ttl_seconds
	ReuseRefreshTokens bool          // oauth_clients.reuse_refresh_tokens
	CreatedAt          time.Time     // oauth_clients.created_at
}

// AllowsGrant reports whether the client is registered for grant.
func (c *RegisteredClient) AllowsGrant(grant string) bool {
	return slices.Contains(c.GrantTypes, grant)
}

// AllowsRedirect requires an exact match against a registered URI.
func (c *RegisteredClient) AllowsRedirect(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsScopes reports whether every requested scope is registered.
func (c *RegisteredClient) AllowsScopes(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(c.Scopes, s) {
			return false
		}
	}
	return true
}

// AuthorizationCode is the state bound to a one-time authorization code
// between the authorize and token endpoints.
type AuthorizationCode struct {
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	UserID      int64     `json:"user_id"`
	Scopes      []string  `json:"scopes"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Session is the client server's per-browser login state.
type Session struct {
	State        string    `json:"state,omitempty"` // pending authorization request
	Username     string    `json:"username,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Authenticated reports whether the session holds a usable access token.
func (s *Session) Authenticated(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}
