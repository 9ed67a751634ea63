package model

import "time"

// Well-known authority and role names seeded at startup.
const (
	AuthorityRead   = "READ"
	AuthorityWrite  = "WRITE"
	AuthorityDelete = "DELETE"

	RoleUser     = "ROLE_USER"
	RoleLecturer = "ROLE_LECTURER"
	RoleAdmin    = "ROLE_ADMIN"
)

// User represents an account stored in the `users` table together with
// the roles joined through `users_roles`.
//
// Fields:
//
//	ID           – primary key, also the `user_id` claim of issued tokens.
//	Username     – unique login name.
//	PasswordHash – bcrypt hash, never serialized.
//	Roles        – roles granted to the user (many-to-many).
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserID returns the numeric identity carried in the `user_id` claim.
func (u *User) UserID() int64 { return u.ID }

// A user owns their own account.
func (u *User) Kind() string         { return KindUser }
func (u *User) ResourceID() int64    { return u.ID }
func (u *User) ResourceOwner() int64 { return u.ID }

// RoleNames lists the names of the user's roles in storage order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Role is a row in the `roles` table. Authorities are loaded through
// `roles_authorities`.
type Role struct {
	ID          int64       `json:"id"`          // roles.id
	Name        string      `json:"name"`        // roles.name (unique)
	Authorities []Authority `json:"authorities"` // roles_authorities
}

// Authority is a fine-grained permission such as READ or WRITE.
type Authority struct {
	ID   int64  `json:"id"`   // authorities.id
	Name string `json:"name"` // authorities.name (unique)
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 digest of the opaque token is stored.
type RefreshToken struct {
	ID        int64      // refresh_tokens.id
	UserID    int64      // refresh_tokens.user_id
	ClientID  string     // refresh_tokens.client_id
	Scope     string     // refresh_tokens.scope (space separated)
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Active reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
