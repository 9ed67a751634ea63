package token

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Type names the kind of token being encoded.
type Type string

const (
	TypeAccess  Type = "access_token"
	TypeRefresh Type = "refresh_token"
	TypeID      Type = "id_token"
)

// Identity is what a principal must expose to receive user claims.
type Identity interface {
	UserID() int64
	RoleNames() []string
}

// EncodingContext is handed to each Customizer before a token is signed.
type EncodingContext struct {
	Type      Type
	GrantType string
	Principal any // authenticated subject; nil for client-only grants
	Claims    *AccessClaims
}

// Customizer may add claims to a token before it is signed. It must not
// fail the token exchange.
type Customizer interface {
	Customize(ctx context.Context, ec *EncodingContext)
}

// CustomizerFunc adapts a function to Customizer.
type CustomizerFunc func(ctx context.Context, ec *EncodingContext)

func (f CustomizerFunc) Customize(ctx context.Context, ec *EncodingContext) { f(ctx, ec) }

// UserClaimsCustomizer adds `user_id` and `roles` to access tokens.
type UserClaimsCustomizer struct {
	Log zerolog.Logger
}

func (u UserClaimsCustomizer) Customize(_ context.Context, ec *EncodingContext) {
	if ec.Type != TypeAccess || ec.Principal == nil {
		return
	}
	id, ok := ec.Principal.(Identity)
	if !ok {
		u.Log.Error().
			Str("grant_type", ec.GrantType).
			Str("principal_type", fmt.Sprintf("%T", ec.Principal)).
			Msg("principal does not expose user id and roles; user claims omitted")
		return
	}
	uid := UserID(id.UserID())
	ec.Claims.UserID = &uid
	ec.Claims.Roles = append([]string(nil), id.RoleNames()...)
}
