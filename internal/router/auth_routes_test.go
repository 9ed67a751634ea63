package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/router"
	"github.com/learntrack/learntrack/internal/service"
	"github.com/learntrack/learntrack/internal/testutil"
)

const redirectURI = "http://client.test/login/oauth2/code/learntrack"

type authServer struct {
	e       *echo.Echo
	metrics *metrics.Metrics
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	ctx := context.Background()
	m := metrics.New()

	users := testutil.NewUsers()
	accounts := service.NewAccounts(users, users.Roles(), bcrypt.MinCost, zerolog.Nop())
	require.NoError(t, accounts.Seed(ctx, true))

	clients := testutil.NewClients()
	_, err := service.EnsureDefaultClient(ctx, clients, config.DefaultClient{
		ClientID:           "learntrack",
		ClientSecret:       "secret",
		ClientRedirectURIs: []string{redirectURI},
		ClientScopes:       []string{"openid", "profile", "read", "write"},
		ClientGrantTypes: []string{model.GrantAuthorizationCode, model.GrantRefreshToken,
			model.GrantClientCredentials, model.GrantPassword},
		ClientConsent:      true,
		ClientReuseRefresh: true,
		ClientAccessTTL:    time.Hour,
		ClientRefreshTTL:   24 * time.Hour,
	}, bcrypt.MinCost, zerolog.Nop())
	require.NoError(t, err)

	issuer := testutil.NewIssuer(t)
	tokens := service.NewTokenService(service.TokenDeps{
		Clients:  clients,
		Accounts: accounts,
		Refresh:  testutil.NewRefreshTokens(),
		Codes:    testutil.NewCodes(),
		Issuer:   issuer,
		Log:      zerolog.Nop(),
		Issued:   m.TokensIssued,
	})

	policy, err := authz.NewPolicy(authz.PolicyOptions{})
	require.NoError(t, err)
	checker := authz.NewChecker(policy, zerolog.Nop(), m.AuthzDecisions)

	e := router.New(zerolog.Nop(), m)
	router.RegisterAuthServer(e, router.AuthServer{
		OAuth:    &handler.OAuthHandler{Tokens: tokens, Issuer: issuer, Log: zerolog.Nop()},
		Auth:     handler.NewAuthHandler(accounts, tokens, "learntrack"),
		Accounts: &handler.AccountHandler{Accounts: accounts, Tokens: tokens, Checker: checker},
		Verifier: testutil.NewVerifier(t),
		Checker:  checker,
		Metrics:  m,
		Log:      zerolog.Nop(),
	})
	return &authServer{e: e, metrics: m}
}

func (s *authServer) json(method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *authServer) form(path string, form url.Values, basicUser, basicPass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *authServer) login(t *testing.T, username, password string) service.TokenResponse {
	t.Helper()
	rec := s.json(http.MethodPost, "/api/v1/auth/login", "",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[service.TokenResponse](t, rec)
}

func TestRegisterEndpoint(t *testing.T) {
	s := newAuthServer(t)

	rec := s.json(http.MethodPost, "/api/v1/auth/register", "", `{"username":"grace","password":"hopper1","role":"lecturer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		ID       int64    `json:"id"`
		Username string   `json:"username"`
		Roles    []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "grace", body.Username)
	assert.Equal(t, []string{model.RoleLecturer}, body.Roles)
	assert.Regexp(t, `^/api/v1/users/\d+$`, rec.Header().Get(echo.HeaderLocation))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"duplicate", `{"username":"grace","password":"hopper1","role":"ROLE_USER"}`, http.StatusConflict},
		{"unknown role", `{"username":"linus","password":"torvalds","role":"ROLE_KING"}`, http.StatusNotFound},
		{"short password", `{"username":"linus","password":"x","role":"ROLE_USER"}`, http.StatusBadRequest},
		{"malformed", `{"username":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, s.json(http.MethodPost, "/api/v1/auth/register", "", tt.body).Code)
		})
	}
}

func TestLoginAndAccountRoutes(t *testing.T) {
	s := newAuthServer(t)

	assert.Equal(t, http.StatusUnauthorized,
		s.json(http.MethodPost, "/api/v1/auth/login", "", `{"username":"user","password":"wrong"}`).Code)

	tok := s.login(t, "user", service.DemoPassword)
	assert.NotEmpty(t, tok.AccessToken)
	assert.NotEmpty(t, tok.RefreshToken)

	rec := s.json(http.MethodGet, "/api/v1/user/roles", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), model.RoleUser)

	assert.Equal(t, http.StatusUnauthorized, s.json(http.MethodGet, "/api/v1/user/roles", "", "").Code)
	assert.Equal(t, http.StatusForbidden, s.json(http.MethodPut, "/api/v1/user/roles", tok.AccessToken, `{"roleId":1}`).Code)
	assert.Equal(t, http.StatusForbidden, s.json(http.MethodGet, "/api/v1/roles", tok.AccessToken, "").Code)

	admin := s.login(t, "admin", service.DemoPassword)
	assert.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v1/roles", admin.AccessToken, "").Code)

	assert.Equal(t, http.StatusNoContent,
		s.json(http.MethodPost, "/api/v1/auth/logout", "", `{"refresh_token":"`+tok.RefreshToken+`"}`).Code)
	rec = s.form("/oauth2/token", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {tok.RefreshToken}}, "learntrack", "secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), service.OAuthInvalidGrant)
}

func TestAccountDecisionsAreRecorded(t *testing.T) {
	s := newAuthServer(t)
	userTok := s.login(t, "user", service.DemoPassword).AccessToken
	lecturerTok := s.login(t, "lecturer", service.DemoPassword).AccessToken
	adminTok := s.login(t, "admin", service.DemoPassword).AccessToken

	verifier := testutil.NewVerifier(t)
	user, err := verifier.Verify(context.Background(), userTok)
	require.NoError(t, err)
	userPath := "/api/v1/users/" + strconv.FormatInt(user.UserID, 10)

	assert.Equal(t, http.StatusUnauthorized, s.json(http.MethodPut, userPath, "", `{"username":"ghost"}`).Code)
	assert.Equal(t, http.StatusForbidden, s.json(http.MethodPut, userPath, lecturerTok, `{"username":"taken"}`).Code)
	assert.Equal(t, http.StatusNotFound, s.json(http.MethodPut, "/api/v1/users/999", userTok, `{"username":"nobody"}`).Code)

	rec := s.json(http.MethodPut, userPath, userTok, `{"username":"renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "renamed")
	rec = s.json(http.MethodPut, userPath, adminTok, `{"username":"byadmin"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, 1.0, decisions(s.metrics, authz.ActionUpdate, "unauthorized"))
	assert.Equal(t, 1.0, decisions(s.metrics, authz.ActionUpdate, "forbidden"))
	assert.Equal(t, 2.0, decisions(s.metrics, authz.ActionUpdate, "allowed"))

	assert.Equal(t, http.StatusForbidden, s.json(http.MethodGet, "/api/v1/roles", userTok, "").Code)
	assert.Equal(t, http.StatusOK, s.json(http.MethodGet, "/api/v1/roles", adminTok, "").Code)
	assert.Equal(t, http.StatusNoContent, s.json(http.MethodDelete, "/api/v1/user/tokens", userTok, "").Code)
	assert.Equal(t, 1.0, decisions(s.metrics, authz.ActionRead, "forbidden"))
	assert.Equal(t, 1.0, decisions(s.metrics, authz.ActionRead, "allowed"))
	assert.Equal(t, 1.0, decisions(s.metrics, authz.ActionDelete, "allowed"))
}

func TestTokenEndpointClientCredentials(t *testing.T) {
	s := newAuthServer(t)

	rec := s.form("/oauth2/token", url.Values{"grant_type": {"client_credentials"}, "scope": {"read"}}, "learntrack", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), service.OAuthInvalidClient)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderWWWAuthenticate))

	rec = s.form("/oauth2/token", url.Values{
		"grant_type": {"client_credentials"}, "client_id": {"learntrack"}, "client_secret": {"secret"},
	}, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
	tok := decode[service.TokenResponse](t, rec)
	assert.Empty(t, tok.RefreshToken)

	p, err := testutil.NewVerifier(t).Verify(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.True(t, p.Anonymous())
	assert.Equal(t, "learntrack", p.Subject)

	// A valid token without a user cannot use the account API.
	assert.Equal(t, http.StatusUnauthorized, s.json(http.MethodGet, "/api/v1/user/roles", tok.AccessToken, "").Code)
}

func TestAuthorizationCodeEndpoints(t *testing.T) {
	s := newAuthServer(t)
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {"learntrack"},
		"redirect_uri":  {redirectURI},
		"scope":         {"openid read"},
		"state":         {"xyz"},
	}

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="state" value="xyz"`)

	bad := url.Values{}
	for k, v := range q {
		bad[k] = v
	}
	bad.Set("redirect_uri", "http://evil.test/cb")
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+bad.Encode(), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	login := url.Values{"username": {"lecturer"}, "password": {"nope"}, "consent": {"approve"}}
	for k, v := range q {
		login[k] = v
	}
	assert.Equal(t, http.StatusUnauthorized, s.form("/oauth2/authorize", login, "", "").Code)

	login.Set("password", service.DemoPassword)
	rec = s.form("/oauth2/authorize", login, "", "")
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	loc, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	assert.Equal(t, "xyz", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	exchange := url.Values{"grant_type": {"authorization_code"}, "code": {code}, "redirect_uri": {redirectURI}}
	rec = s.form("/oauth2/token", exchange, "learntrack", "secret")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tok := decode[service.TokenResponse](t, rec)
	assert.NotEmpty(t, tok.IDToken)

	p, err := testutil.NewVerifier(t).Verify(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []string{model.RoleLecturer}, p.Roles)

	assert.Equal(t, http.StatusBadRequest, s.form("/oauth2/token", exchange, "learntrack", "secret").Code)

	login.Set("consent", "deny")
	rec = s.form("/oauth2/authorize", login, "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderLocation), "error=access_denied")
}

func TestRevokeEndpoint(t *testing.T) {
	s := newAuthServer(t)
	tok := s.login(t, "user", service.DemoPassword)

	assert.Equal(t, http.StatusOK, s.form("/oauth2/revoke", url.Values{"token": {"unknown"}}, "learntrack", "secret").Code)
	assert.Equal(t, http.StatusBadRequest, s.form("/oauth2/revoke", url.Values{}, "learntrack", "secret").Code)
	assert.Equal(t, http.StatusOK, s.form("/oauth2/revoke", url.Values{"token": {tok.RefreshToken}}, "learntrack", "secret").Code)

	rec := s.form("/oauth2/token", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {tok.RefreshToken}}, "learntrack", "secret")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscoveryAndKeys(t *testing.T) {
	s := newAuthServer(t)

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var set struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Alg string `json:"alg"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "RSA", set.Keys[0].Kty)
	assert.NotEmpty(t, set.Keys[0].Kid)

	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var disc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disc))
	assert.Equal(t, testutil.Issuer, disc["issuer"])
	assert.Equal(t, testutil.Issuer+"/.well-known/jwks.json", disc["jwks_uri"])

	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "learntrack_http_request_duration_seconds")
}
