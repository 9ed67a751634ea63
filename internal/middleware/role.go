package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/learntrack/learntrack/internal/authz"
)

// RequirePermission lets the request through when the checker grants the
// caller action on kind. It must run after Authenticate. Callers without
// a user get 401, callers without a matching role 403.
func RequirePermission(ch *authz.Checker, action, kind string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if err := ch.CheckAllowed(c.Request().Context(), p, action, kind, p.UserID); err != nil {
				return deny(c, err)
			}
			return next(c)
		}
	}
}

// RequireUser rejects callers without a user identity, including valid
// client_credentials tokens. The decision is recorded as action on kind.
func RequireUser(ch *authz.Checker, action, kind string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFrom(c)
			if err := ch.CheckAuthenticated(c.Request().Context(), p, action, kind, p.UserID); err != nil {
				return deny(c, err)
			}
			return next(c)
		}
	}
}

func deny(c echo.Context, err error) error {
	switch {
	case errors.Is(err, authz.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	case errors.Is(err, authz.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return err
}
