package token

import (
	"context"
	"crypto/rsa"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/learntrack/learntrack/internal/authz"
)

// KeySource resolves the public key for a token's kid header.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// Verifier checks RS256 signatures and expiry and turns valid tokens into
// an authz.Principal. It accepts no other algorithm.
type Verifier struct {
	keys   KeySource
	issuer string
	leeway time.Duration
	now    func() time.Time
}

type VerifierOption func(*Verifier)

// WithIssuer requires the `iss` claim to equal iss.
func WithIssuer(iss string) VerifierOption {
	return func(v *Verifier) { v.issuer = strings.TrimRight(iss, "/") }
}

// WithLeeway tolerates clock skew on exp, nbf and iat.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// WithVerifyClock overrides time.Now.
func WithVerifyClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(keys KeySource, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses raw and returns the caller. Errors wrap one of
// ErrTokenMissing, ErrTokenMalformed, ErrTokenExpired, ErrTokenSignature
// or ErrTokenClaims.
func (v *Verifier) Verify(ctx context.Context, raw string) (authz.Principal, error) {
	if strings.TrimSpace(raw) == "" {
		return authz.Principal{}, ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &AccessClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return authz.Principal{}, classify(err)
	}
	return principalFrom(claims), nil
}

func principalFrom(c *AccessClaims) authz.Principal {
	p := authz.Principal{
		Subject:  c.Subject,
		ClientID: c.ClientID,
		Roles:    c.Roles,
		Scopes:   strings.Fields(c.Scope),
	}
	if c.UserID != nil {
		p.UserID = int64(*c.UserID)
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p
}
