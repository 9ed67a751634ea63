// Package authz decides whether a verified caller may create or mutate a
// resource. Every decision goes through Checker so role and ownership
// rules live in one place.
package authz

import (
	"slices"
	"strconv"
	"time"
)

// Principal is the caller identity built once from a verified access
// token. The zero value is the anonymous caller.
type Principal struct {
	UserID    int64 // `user_id` claim; 0 when absent
	Subject   string
	ClientID  string
	Roles     []string
	Scopes    []string
	ExpiresAt time.Time
}

// Anonymous reports whether the caller carries no user identity. Tokens
// without a `user_id` claim, such as client_credentials tokens, are
// anonymous for ownership purposes.
func (p Principal) Anonymous() bool { return p.UserID == 0 }

// HasAnyRole reports whether the principal holds at least one of roles.
func (p Principal) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

// LogID renders the principal for log fields.
func (p Principal) LogID() string {
	if p.Anonymous() {
		return "anonymous"
	}
	return strconv.FormatInt(p.UserID, 10)
}
