// Package token issues and verifies the RS256 access tokens shared by the
// authorization and resource servers.
package token

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures. Each wraps the underlying parser error.
var (
	ErrTokenMissing   = errors.New("bearer token missing")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenClaims    = errors.New("token claims invalid")
)

// ErrUnknownKey is returned by a KeySource for a kid it cannot resolve.
var ErrUnknownKey = errors.New("unknown signing key")

// ErrInvalidUserID is returned when `user_id` is neither an integer nor
// a string holding one.
var ErrInvalidUserID = errors.New("user_id is not an integer")

// classify maps a jwt parser error onto one of the verification errors.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrInvalidUserID):
		return fmt.Errorf("%w: %w", ErrTokenClaims, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrTokenSignature, err)
	}
	return fmt.Errorf("%w: %w", ErrTokenClaims, err)
}

// Reason returns a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenSignature):
		return "signature"
	case errors.Is(err, ErrTokenClaims):
		return "claims"
	}
	return "unknown"
}
