package utils // package utils provides helpers for opaque token creation and hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshToken is a long-lived opaque token used to obtain new access
// tokens. Only the SHA-256 hash of Raw is persisted.
type RefreshToken struct {
	Raw string    // returned to the client once
	Exp time.Time // UTC expiration time
}

// NewRefreshToken returns a random refresh token valid for ttl from now.
func NewRefreshToken(now time.Time, ttl time.Duration) (RefreshToken, error) {
	raw, err := RandomHex(48) // 48 bytes -> 96 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{Raw: raw, Exp: now.UTC().Add(ttl)}, nil
}

// HashToken returns the hex SHA-256 digest of an opaque token. Refresh
// tokens and authorization codes are looked up by this value.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns n bytes of crypto/rand data, hex encoded.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
