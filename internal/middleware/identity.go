package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/learntrack/learntrack/internal/authz"
)

const (
	principalKey = "learntrack.principal"
	verifiedKey  = "learntrack.verified"
)

// PrincipalFrom returns the caller set by Authenticate. Requests without
// a valid token yield the anonymous principal.
func PrincipalFrom(c echo.Context) authz.Principal {
	p, _ := c.Get(principalKey).(authz.Principal)
	return p
}

// Verified reports whether the request carried a valid bearer token.
func Verified(c echo.Context) bool {
	ok, _ := c.Get(verifiedKey).(bool)
	return ok
}

func setPrincipal(c echo.Context, p authz.Principal) {
	c.Set(principalKey, p)
	c.Set(verifiedKey, true)
}

// callerID identifies the caller for rate limit keys: the user id, the
// token subject, or "anon".
func callerID(c echo.Context) string {
	p := PrincipalFrom(c)
	switch {
	case !p.Anonymous():
		return strconv.FormatInt(p.UserID, 10)
	case p.Subject != "":
		return p.Subject
	}
	return "anon"
}
