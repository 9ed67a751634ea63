// Package e2e runs the authorization, resource and client servers
// together over real HTTP.
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/client"
	"github.com/learntrack/learntrack/internal/config"
	"github.com/learntrack/learntrack/internal/handler"
	"github.com/learntrack/learntrack/internal/metrics"
	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/queue"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/router"
	"github.com/learntrack/learntrack/internal/service"
	"github.com/learntrack/learntrack/internal/testutil"
	"github.com/learntrack/learntrack/internal/token"
)

const callbackPath = "/login/oauth2/code/learntrack"

type stack struct {
	auth, resource, web *httptest.Server
	clients             *testutil.Clients
	pages               *handler.PagesHandler
}

func startStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()
	s := &stack{clients: testutil.NewClients()}

	// Authorization server.
	users := testutil.NewUsers()
	accounts := service.NewAccounts(users, users.Roles(), bcrypt.MinCost, log)
	require.NoError(t, accounts.Seed(ctx, true))
	issuer := testutil.NewIssuer(t)
	tokens := service.NewTokenService(service.TokenDeps{
		Clients:  s.clients,
		Accounts: accounts,
		Refresh:  testutil.NewRefreshTokens(),
		Codes:    testutil.NewCodes(),
		Issuer:   issuer,
		Log:      log,
	})
	am := metrics.New()
	accountPolicy, err := authz.NewPolicy(authz.PolicyOptions{})
	require.NoError(t, err)
	accountChecker := authz.NewChecker(accountPolicy, log, am.AuthzDecisions)
	ae := router.New(log, am)
	router.RegisterAuthServer(ae, router.AuthServer{
		OAuth:    &handler.OAuthHandler{Tokens: tokens, Issuer: issuer, Log: log},
		Auth:     handler.NewAuthHandler(accounts, tokens, "learntrack"),
		Accounts: &handler.AccountHandler{Accounts: accounts, Tokens: tokens, Checker: accountChecker},
		Verifier: testutil.NewVerifier(t),
		Checker:  accountChecker,
		Metrics:  am,
		Log:      log,
	})
	s.auth = httptest.NewServer(ae)
	t.Cleanup(s.auth.Close)

	// Resource server, trusting the authorization server's JWKS.
	policy, err := authz.NewPolicy(authz.PolicyOptions{})
	require.NoError(t, err)
	store := testutil.NewResources()
	rm := metrics.New()
	re := router.New(log, rm)
	keys := token.NewRemoteKeySet(s.auth.URL+"/.well-known/jwks.json", time.Minute)
	router.RegisterResourceServer(re, router.ResourceServer{
		Resources: &handler.ResourceHandler{
			Courses: store.Courses(),
			Lessons: store.Lessons(),
			Reviews: store.Reviews(),
			Checker: authz.NewChecker(policy, log, rm.AuthzDecisions),
			Events:  queue.Nop{},
			Log:     log,
		},
		Verifier: token.NewVerifier(keys, token.WithIssuer(testutil.Issuer)),
		Metrics:  rm,
		Log:      log,
	})
	s.resource = httptest.NewServer(re)
	t.Cleanup(s.resource.Close)

	// Client server. The redirect URI depends on its own address, so the
	// auth client is attached once the listener exists.
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s.pages = &handler.PagesHandler{
		Sessions:   repository.NewSessionStore(rdb),
		API:        client.NewResourceClient(s.resource.URL, s.resource.Client(), log),
		SessionTTL: time.Hour,
		Log:        log,
	}
	we := router.New(log, metrics.New())
	router.RegisterClientServer(we, router.ClientServer{Pages: s.pages, Metrics: metrics.New()})
	s.web = httptest.NewServer(we)
	t.Cleanup(s.web.Close)

	redirect := s.web.URL + callbackPath
	s.pages.Auth = client.NewAuthClient(client.AuthConfig{
		BaseURL:      s.auth.URL,
		ClientID:     "learntrack",
		ClientSecret: "secret",
		RedirectURI:  redirect,
		Scopes:       []string{"openid", "read", "write"},
	}, s.auth.Client(), log)

	_, err = service.EnsureDefaultClient(ctx, s.clients, config.DefaultClient{
		ClientID:           "learntrack",
		ClientSecret:       "secret",
		ClientRedirectURIs: []string{redirect},
		ClientScopes:       []string{"openid", "profile", "read", "write"},
		ClientGrantTypes:   []string{model.GrantAuthorizationCode, model.GrantRefreshToken, model.GrantPassword},
		ClientConsent:      false,
		ClientReuseRefresh: true,
		ClientAccessTTL:    time.Hour,
		ClientRefreshTTL:   24 * time.Hour,
	}, bcrypt.MinCost, log)
	require.NoError(t, err)
	return s
}

func call(t *testing.T, method, target, bearer, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *stack) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := call(t, http.MethodPost, s.auth.URL+"/api/v1/auth/login", "", "application/json",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok service.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	return tok.AccessToken
}

func TestOwnershipAcrossServers(t *testing.T) {
	s := startStack(t)
	lecturer := s.login(t, "lecturer", service.DemoPassword)

	resp := call(t, http.MethodPost, s.resource.URL+"/api/v1/courses", lecturer, "application/json",
		`{"name":"Distributed Go","description":"RPC and friends"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.NotEmpty(t, location)

	resp = call(t, http.MethodGet, s.resource.URL+location, "", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, http.MethodPost, s.auth.URL+"/api/v1/auth/register", "", "application/json",
		`{"username":"grace","password":"hopper1","role":"ROLE_LECTURER"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rival := s.login(t, "grace", "hopper1")

	resp = call(t, http.MethodDelete, s.resource.URL+location, rival, "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, http.MethodDelete, s.resource.URL+location, "", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, http.MethodDelete, s.resource.URL+location, lecturer, "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestForeignKeyRejected(t *testing.T) {
	s := startStack(t)

	other, err := token.GenerateKeyPair()
	require.NoError(t, err)
	forged, err := token.NewIssuer(other, testutil.Issuer,
		token.WithCustomizer(token.UserClaimsCustomizer{Log: zerolog.Nop()})).
		Issue(context.Background(), token.Grant{
			GrantType: model.GrantPassword,
			Subject:   "1",
			ClientID:  "learntrack",
			TTL:       time.Hour,
			Principal: &model.User{ID: 1, Roles: []model.Role{{Name: model.RoleAdmin}}},
		})
	require.NoError(t, err)

	resp := call(t, http.MethodPost, s.resource.URL+"/api/v1/courses", forged.Token, "application/json", `{"name":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBrowserLoginThroughClientServer(t *testing.T) {
	s := startStack(t)
	browser := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	// The client server sends the browser to the authorization server.
	resp, err := browser.Get(s.web.URL + "/login")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "lt_session" {
			session = c
		}
	}
	require.NotNil(t, session)
	authorize, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(authorize.String(), s.auth.URL+"/oauth2/authorize"))

	// The user signs in on the authorization server's form.
	form := authorize.Query()
	form.Set("username", "lecturer")
	form.Set("password", service.DemoPassword)
	form.Set("consent", "approve")
	resp, err = browser.PostForm(s.auth.URL+"/oauth2/authorize", form)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	callback := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(callback, s.web.URL+callbackPath), callback)

	// Back on the client server, the code is exchanged for tokens.
	get := func(target string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, target, nil)
		require.NoError(t, err)
		req.AddCookie(session)
		resp, err := browser.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}
	resp = get(callback)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	// The session can now create courses on the resource server.
	req, err := http.NewRequest(http.MethodPost, s.web.URL+"/courses",
		strings.NewReader(url.Values{"name": {"Go"}, "description": {"basics"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(session)
	resp, err = browser.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	coursePage := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(coursePage, "/courses/"), coursePage)

	resp = get(s.web.URL + "/")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Sign out")
	assert.Contains(t, string(body), "Go")

	resp = get(s.web.URL + coursePage)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
