package testutil

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/token"
)

// Issuer is the issuer URL used by test tokens.
const Issuer = "http://auth.test"

var (
	keyOnce sync.Once
	keys    *token.KeyPair
)

// Keys returns a signing key shared by the whole test binary. RSA key
// generation is too slow to repeat per test.
func Keys(t testing.TB) *token.KeyPair {
	t.Helper()
	keyOnce.Do(func() {
		kp, err := token.GenerateKeyPair()
		if err != nil {
			panic(err)
		}
		keys = kp
	})
	return keys
}

// NewIssuer returns an issuer that adds user claims to access tokens.
func NewIssuer(t testing.TB) *token.Issuer {
	return token.NewIssuer(Keys(t), Issuer,
		token.WithCustomizer(token.UserClaimsCustomizer{Log: zerolog.Nop()}))
}

// NewVerifier accepts tokens from NewIssuer.
func NewVerifier(t testing.TB) *token.Verifier {
	return token.NewVerifier(Keys(t), token.WithIssuer(Issuer))
}

// AccessToken signs a one-hour access token for a user with roles.
func AccessToken(t testing.TB, userID int64, roles ...string) string {
	t.Helper()
	u := &model.User{ID: userID, Username: "user" + strconv.FormatInt(userID, 10)}
	for _, r := range roles {
		u.Roles = append(u.Roles, model.Role{Name: r})
	}
	issued, err := NewIssuer(t).Issue(context.Background(), token.Grant{
		GrantType: model.GrantPassword,
		Subject:   strconv.FormatInt(userID, 10),
		ClientID:  "learntrack",
		Scopes:    []string{"read", "write"},
		TTL:       time.Hour,
		Principal: u,
	})
	if err != nil {
		t.Fatalf("issue test token: %v", err)
	}
	return issued.Token
}
