package utils

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when a username does not exist so that
// unknown and known users take the same time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("learntrack-dummy-password"), bcrypt.DefaultCost)

// HashPassword returns a bcrypt hash using the given cost. A cost outside
// bcrypt's accepted range falls back to bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash with a plain password. An empty
// hash is checked against a dummy hash and always fails.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
