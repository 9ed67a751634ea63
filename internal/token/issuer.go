package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer signs access and ID tokens with the process key pair.
type Issuer struct {
	keys        *KeyPair
	issuer      string
	audience    []string
	customizers []Customizer
	now         func() time.Time
}

type IssuerOption func(*Issuer)

// WithCustomizer appends a claims customizer. Customizers run in order.
func WithCustomizer(c Customizer) IssuerOption {
	return func(i *Issuer) { i.customizers = append(i.customizers, c) }
}

// WithAudience adds audiences to every access token besides the client id.
func WithAudience(aud ...string) IssuerOption {
	return func(i *Issuer) { i.audience = append(i.audience, aud...) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(keys *KeyPair, issuerURL string, opts ...IssuerOption) *Issuer {
	i := &Issuer{keys: keys, issuer: strings.TrimRight(issuerURL, "/"), now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// URL is the `iss` value of issued tokens.
func (i *Issuer) URL() string { return i.issuer }

// KeySet returns the public JWKS for /.well-known/jwks.json.
func (i *Issuer) KeySet() jose.JSONWebKeySet { return i.keys.JWKS() }

// Grant describes the token to issue.
type Grant struct {
	GrantType string
	Subject   string // user id for user grants, client id otherwise
	ClientID  string
	Scopes    []string
	TTL       time.Duration
	Principal any // *model.User for user grants, nil for client_credentials
}

// Issued is a signed token and its timing.
type Issued struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue signs an access token for g.
func (i *Issuer) Issue(ctx context.Context, g Grant) (Issued, error) {
	aud := append([]string{g.ClientID}, i.audience...)
	return i.sign(ctx, TypeAccess, g, aud, strings.Join(g.Scopes, " "))
}

// IssueIDToken signs an OpenID Connect ID token addressed to the client.
func (i *Issuer) IssueIDToken(ctx context.Context, g Grant) (Issued, error) {
	return i.sign(ctx, TypeID, g, []string{g.ClientID}, "")
}

func (i *Issuer) sign(ctx context.Context, typ Type, g Grant, aud []string, scope string) (Issued, error) {
	if g.TTL <= 0 {
		return Issued{}, errors.New("token ttl must be positive")
	}
	if g.Subject == "" {
		return Issued{}, errors.New("token subject is empty")
	}
	now := i.now().UTC()
	exp := now.Add(g.TTL)
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   g.Subject,
			Audience:  aud,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Scope:    scope,
		ClientID: g.ClientID,
	}

	ec := &EncodingContext{Type: typ, GrantType: g.GrantType, Principal: g.Principal, Claims: claims}
	for _, c := range i.customizers {
		c.Customize(ctx, ec)
	}

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = i.keys.KeyID
	signed, err := t.SignedString(i.keys.Private)
	if err != nil {
		return Issued{}, fmt.Errorf("sign %s: %w", typ, err)
	}
	return Issued{Token: signed, ID: claims.ID, IssuedAt: now, ExpiresAt: claims.ExpiresAt.Time}, nil
}
