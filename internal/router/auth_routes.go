package router

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
	"github.com/learntrack/learntrack/internal/middleware"
)

// AuthServer holds what the authorization server routes need.
type AuthServer struct {
	OAuth    *handler.OAuthHandler
	Auth     *handler.AuthHandler
	Accounts *handler.AccountHandler
	Verifier middleware.TokenVerifier
	// Checker decides the account and role administration endpoints.
	Checker *authz.Checker
	// RateLimit guards the credential endpoints. Nil disables it.
	RateLimit echo.MiddlewareFunc
	Ready     map[string]handler.Pinger
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

// RegisterAuthServer mounts the OAuth2 endpoints, registration and the
// account API.
func RegisterAuthServer(e *echo.Echo, s AuthServer) {
	registerOps(e, s.Metrics, s.Ready)

	limit := s.RateLimit
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	e.GET("/.well-known/jwks.json", s.OAuth.JWKS)
	e.GET("/.well-known/openid-configuration", s.OAuth.Discovery)

	o := e.Group("/oauth2")
	o.GET("/authorize", s.OAuth.AuthorizeForm)
	o.POST("/authorize", s.OAuth.Authorize, limit)
	o.POST("/token", s.OAuth.Token, limit)
	o.POST("/revoke", s.OAuth.Revoke)

	a := e.Group("/api/v1/auth")
	a.POST("/register", s.Auth.Register, limit)
	a.POST("/login", s.Auth.Login, limit)
	a.POST("/logout", s.Auth.Logout)

	authn := middleware.Authenticate(s.Verifier, s.Log, s.Metrics.VerifyFailures)

	u := e.Group("/api/v1/user", authn)
	u.GET("/roles", s.Accounts.MyRoles, middleware.RequireUser(s.Checker, authz.ActionRead, authz.KindRole))
	u.PUT("/roles", s.Accounts.AddMyRole, middleware.RequirePermission(s.Checker, authz.ActionUpdate, authz.KindRole))
	u.DELETE("/roles/:roleId", s.Accounts.RemoveMyRole, middleware.RequirePermission(s.Checker, authz.ActionUpdate, authz.KindRole))
	u.DELETE("/tokens", s.Accounts.RevokeMyTokens, middleware.RequireUser(s.Checker, authz.ActionDelete, authz.KindToken))

	e.PUT("/api/v1/users/:id", s.Accounts.Rename, authn)

	r := e.Group("/api/v1/roles", authn)
	r.GET("", s.Accounts.Roles, middleware.RequirePermission(s.Checker, authz.ActionRead, authz.KindRole))
	r.PUT("/:id/authorities/:authority", s.Accounts.AddAuthority, middleware.RequirePermission(s.Checker, authz.ActionUpdate, authz.KindRole))
	r.DELETE("/:id/authorities/:authority", s.Accounts.RemoveAuthority, middleware.RequirePermission(s.Checker, authz.ActionUpdate, authz.KindRole))
}
