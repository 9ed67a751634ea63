package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/service"
	"github.com/learntrack/learntrack/internal/token"
)

// OAuthHandler serves the OAuth2 and OpenID discovery endpoints.
type OAuthHandler struct {
	Tokens *service.TokenService
	Issuer *token.Issuer
	Log    zerolog.Logger
}

type authorizePage struct {
	Title      string
	ClientName string
	Request    service.AuthorizeRequest
	Scopes     []string
	Consent    bool
	Error      string
}

type errorPage struct {
	Title   string
	Message string
}

func authorizeRequest(c echo.Context) service.AuthorizeRequest {
	return service.AuthorizeRequest{
		ResponseType: c.FormValue("response_type"),
		ClientID:     c.FormValue("client_id"),
		RedirectURI:  c.FormValue("redirect_uri"),
		Scope:        c.FormValue("scope"),
		State:        c.FormValue("state"),
	}
}

// authorizeError redirects errors the client may see and renders the
// rest to the user.
func (h *OAuthHandler) authorizeError(c echo.Context, err error) error {
	var oe *service.OAuthError
	if !errors.As(err, &oe) {
		return err
	}
	if oe.RedirectURI != "" {
		loc, rerr := service.RedirectWithError(oe)
		if rerr != nil {
			return rerr
		}
		return c.Redirect(http.StatusFound, loc)
	}
	return c.Render(http.StatusBadRequest, "error.html", errorPage{Title: "Error", Message: oe.Error()})
}

// AuthorizeForm handles GET /oauth2/authorize.
func (h *OAuthHandler) AuthorizeForm(c echo.Context) error {
	req := authorizeRequest(c)
	client, scopes, err := h.Tokens.ValidateAuthorize(c.Request().Context(), req)
	if err != nil {
		return h.authorizeError(c, err)
	}
	return c.Render(http.StatusOK, "authorize.html", authorizePage{
		Title: "Sign in", ClientName: client.Name, Request: req, Scopes: scopes, Consent: client.RequireConsent,
	})
}

// Authorize handles POST /oauth2/authorize.
func (h *OAuthHandler) Authorize(c echo.Context) error {
	req := authorizeRequest(c)
	ctx := c.Request().Context()
	loc, err := h.Tokens.Authorize(ctx, req, c.FormValue("username"), c.FormValue("password"),
		c.FormValue("consent") == "approve")
	if errors.Is(err, service.ErrInvalidCredentials) {
		client, scopes, verr := h.Tokens.ValidateAuthorize(ctx, req)
		if verr != nil {
			return h.authorizeError(c, verr)
		}
		return c.Render(http.StatusUnauthorized, "authorize.html", authorizePage{
			Title: "Sign in", ClientName: client.Name, Request: req, Scopes: scopes,
			Consent: client.RequireConsent, Error: "Invalid username or password.",
		})
	}
	if err != nil {
		return h.authorizeError(c, err)
	}
	return c.Redirect(http.StatusFound, loc)
}

// clientCredentials reads HTTP Basic credentials, falling back to the
// client_id and client_secret form fields.
func clientCredentials(c echo.Context) (id, secret string, basic bool) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		uid, err1 := url.QueryUnescape(id)
		usecret, err2 := url.QueryUnescape(secret)
		if err1 == nil && err2 == nil {
			return uid, usecret, true
		}
		return id, secret, true
	}
	return c.FormValue("client_id"), c.FormValue("client_secret"), false
}

func (h *OAuthHandler) authenticateClient(c echo.Context) (*model.RegisteredClient, error) {
	id, secret, basic := clientCredentials(c)
	client, err := h.Tokens.AuthenticateClient(c.Request().Context(), id, secret)
	if err != nil && basic {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Basic realm="learntrack"`)
	}
	return client, err
}

// Token handles POST /oauth2/token.
func (h *OAuthHandler) Token(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	client, err := h.authenticateClient(c)
	if err != nil {
		return err
	}
	resp, err := h.Tokens.Token(c.Request().Context(), client, service.TokenRequest{
		GrantType:    c.FormValue("grant_type"),
		Code:         c.FormValue("code"),
		RedirectURI:  c.FormValue("redirect_uri"),
		RefreshToken: c.FormValue("refresh_token"),
		Username:     c.FormValue("username"),
		Password:     c.FormValue("password"),
		Scope:        c.FormValue("scope"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Revoke handles POST /oauth2/revoke. Unknown tokens still get 200.
func (h *OAuthHandler) Revoke(c echo.Context) error {
	client, err := h.authenticateClient(c)
	if err != nil {
		return err
	}
	raw := c.FormValue("token")
	if raw == "" {
		return &service.OAuthError{Code: service.OAuthInvalidRequest, Description: "token is required"}
	}
	if hint := c.FormValue("token_type_hint"); hint == "access_token" {
		// Access tokens are self-contained and expire on their own.
		return c.NoContent(http.StatusOK)
	}
	if err := h.Tokens.Revoke(c.Request().Context(), client, raw); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// JWKS handles GET /.well-known/jwks.json.
func (h *OAuthHandler) JWKS(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return c.JSON(http.StatusOK, h.Issuer.KeySet())
}

// Discovery handles GET /.well-known/openid-configuration.
func (h *OAuthHandler) Discovery(c echo.Context) error {
	iss := strings.TrimRight(h.Issuer.URL(), "/")
	return c.JSON(http.StatusOK, echo.Map{
		"issuer":                                iss,
		"authorization_endpoint":                iss + "/oauth2/authorize",
		"token_endpoint":                        iss + "/oauth2/token",
		"revocation_endpoint":                   iss + "/oauth2/revoke",
		"jwks_uri":                              iss + "/.well-known/jwks.json",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{model.GrantAuthorizationCode, model.GrantRefreshToken, model.GrantClientCredentials, model.GrantPassword},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
		"scopes_supported":                      []string{"openid", "profile", "read", "write"},
		"claims_supported":                      []string{"sub", "iss", "aud", "exp", "iat", "user_id", "roles"},
	})
}
