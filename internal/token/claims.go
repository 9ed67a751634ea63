package token

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// UserID is the `user_id` claim. It is written as a JSON number and read
// from either a number or a numeric string, parsed as an integer so ids
// above 2^53 survive intact.
type UserID int64

func (u UserID) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(u), 10), nil
}

func (u *UserID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidUserID, b)
	}
	*u = UserID(n)
	return nil
}

// AccessClaims is the payload of LearnTrack access and ID tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	Scope    string   `json:"scope,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
	UserID   *UserID  `json:"user_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Validate runs after the registered claims checks.
func (c *AccessClaims) Validate() error {
	if c.Subject == "" {
		return errors.New("sub claim is empty")
	}
	return nil
}
