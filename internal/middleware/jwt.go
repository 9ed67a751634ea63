package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/token"
)

// TokenVerifier turns a raw bearer token into a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (authz.Principal, error)
}

// SafeMethods may be called without a token on the resource server.
var SafeMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

// Authenticate verifies the bearer token, if any, and stores the caller
// in the context. A missing or invalid token leaves the request
// anonymous; failures are logged and counted by reason. failures may be
// nil.
func Authenticate(v TokenVerifier, log zerolog.Logger, failures *prometheus.CounterVec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, present := bearer(c.Request())
			if !present {
				return next(c)
			}
			p, err := v.Verify(c.Request().Context(), raw)
			if err != nil {
				reason := token.Reason(err)
				log.Warn().Err(err).
					Str("reason", reason).
					Str("method", c.Request().Method).
					Str("path", c.Request().URL.Path).
					Msg("bearer token rejected")
				if failures != nil {
					failures.WithLabelValues(reason).Inc()
				}
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
				return next(c)
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// RequireAuthentication rejects unverified requests with 401 unless the
// method is listed in public.
func RequireAuthentication(public ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if Verified(c) || slices.Contains(public, c.Request().Method) {
				return next(c)
			}
			if c.Response().Header().Get(echo.HeaderWWWAuthenticate) == "" {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}
	}
}

// bearer extracts the token from an "Authorization: Bearer" header. The
// scheme is matched case-insensitively.
func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get(echo.HeaderAuthorization)
	if auth == "" {
		return "", false
	}
	scheme, raw, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(raw), true
}
