package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/token"
	"github.com/learntrack/learntrack/internal/utils"
)

const scopeOpenID = "openid"

var knownGrants = []string{
	model.GrantAuthorizationCode,
	model.GrantRefreshToken,
	model.GrantClientCredentials,
	model.GrantPassword,
}

// TokenDeps wires a TokenService.
type TokenDeps struct {
	Clients  ClientStore
	Accounts *Accounts
	Refresh  RefreshTokenStore
	Codes    CodeStore
	Issuer   *token.Issuer
	CodeTTL  time.Duration
	Log      zerolog.Logger
	Issued   *prometheus.CounterVec // optional, labelled by grant_type
	Now      func() time.Time
}

// TokenService implements the authorize, token and revoke endpoints.
type TokenService struct {
	TokenDeps
}

func NewTokenService(d TokenDeps) *TokenService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.CodeTTL <= 0 {
		d.CodeTTL = 5 * time.Minute
	}
	return &TokenService{TokenDeps: d}
}

// TokenRequest is the parsed form of POST /oauth2/token.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	RefreshToken string
	Username     string
	Password     string
	Scope        string
}

// TokenResponse is the RFC 6749 success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// AuthenticateClient checks client credentials.
func (s *TokenService) AuthenticateClient(ctx context.Context, clientID, secret string) (*model.RegisteredClient, error) {
	if clientID == "" {
		return nil, oauthErr(OAuthInvalidClient, "client authentication required")
	}
	c, err := s.Clients.GetByClientID(ctx, clientID)
	if errors.Is(err, repository.ErrNotFound) {
		utils.VerifyPassword("", secret)
		return nil, oauthErr(OAuthInvalidClient, "unknown client")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup client: %w", err)
	}
	if !utils.VerifyPassword(c.SecretHash, secret) {
		return nil, oauthErr(OAuthInvalidClient, "bad client credentials")
	}
	return c, nil
}

// Token runs the grant named in req for an authenticated client.
func (s *TokenService) Token(ctx context.Context, client *model.RegisteredClient, req TokenRequest) (*TokenResponse, error) {
	if !slices.Contains(knownGrants, req.GrantType) {
		return nil, oauthErr(OAuthUnsupportedGrantType, req.GrantType)
	}
	if !client.AllowsGrant(req.GrantType) {
		return nil, oauthErr(OAuthUnauthorizedClient, "grant not enabled for client")
	}

	switch req.GrantType {
	case model.GrantAuthorizationCode:
		return s.exchangeCode(ctx, client, req)
	case model.GrantRefreshToken:
		return s.refresh(ctx, client, req)
	case model.GrantPassword:
		return s.password(ctx, client, req)
	default:
		return s.clientCredentials(ctx, client, req)
	}
}

func (s *TokenService) exchangeCode(ctx context.Context, client *model.RegisteredClient, req TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, oauthErr(OAuthInvalidRequest, "code is required")
	}
	ac, err := s.Codes.Consume(ctx, req.Code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, oauthErr(OAuthInvalidGrant, "code is invalid, expired or already used")
	}
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if ac.ClientID != client.ClientID || ac.RedirectURI != req.RedirectURI {
		return nil, oauthErr(OAuthInvalidGrant, "code was issued to another client or redirect uri")
	}
	user, err := s.Accounts.User(ctx, ac.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, oauthErr(OAuthInvalidGrant, "user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	return s.issueForUser(ctx, client, user, ac.Scopes, req.GrantType, "")
}

func (s *TokenService) refresh(ctx context.Context, client *model.RegisteredClient, req TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, oauthErr(OAuthInvalidRequest, "refresh_token is required")
	}
	hash := utils.HashToken(req.RefreshToken)
	rt, err := s.Refresh.GetByHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, oauthErr(OAuthInvalidGrant, "unknown refresh token")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if !rt.Active(s.Now()) || rt.ClientID != client.ClientID {
		return nil, oauthErr(OAuthInvalidGrant, "refresh token is not valid for this client")
	}

	scopes := strings.Fields(rt.Scope)
	if req.Scope != "" {
		narrowed := strings.Fields(req.Scope)
		for _, sc := range narrowed {
			if !slices.Contains(scopes, sc) {
				return nil, oauthErr(OAuthInvalidScope, "scope exceeds the original grant")
			}
		}
		scopes = narrowed
	}

	user, err := s.Accounts.User(ctx, rt.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, oauthErr(OAuthInvalidGrant, "user no longer exists")
	}
	if err != nil {
		return nil, err
	}

	keep := ""
	if client.ReuseRefreshTokens {
		keep = req.RefreshToken
	} else if err := s.Refresh.RevokeByHash(ctx, hash); errors.Is(err, repository.ErrNotFound) {
		return nil, oauthErr(OAuthInvalidGrant, "refresh token was already used")
	} else if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return s.issueForUser(ctx, client, user, scopes, req.GrantType, keep)
}

func (s *TokenService) password(ctx context.Context, client *model.RegisteredClient, req TokenRequest) (*TokenResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, oauthErr(OAuthInvalidRequest, "username and password are required")
	}
	scopes, err := resolveScopes(client, req.Scope)
	if err != nil {
		return nil, err
	}
	user, err := s.Accounts.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return nil, oauthErr(OAuthInvalidGrant, "bad credentials")
	}
	if err != nil {
		return nil, err
	}
	return s.issueForUser(ctx, client, user, scopes, req.GrantType, "")
}

func (s *TokenService) clientCredentials(ctx context.Context, client *model.RegisteredClient, req TokenRequest) (*TokenResponse, error) {
	scopes, err := resolveScopes(client, req.Scope)
	if err != nil {
		return nil, err
	}
	scopes = slices.DeleteFunc(scopes, func(s string) bool { return s == scopeOpenID })
	access, err := s.Issuer.Issue(ctx, token.Grant{
		GrantType: req.GrantType,
		Subject:   client.ClientID,
		ClientID:  client.ClientID,
		Scopes:    scopes,
		TTL:       client.AccessTokenTTL,
	})
	if err != nil {
		return nil, err
	}
	s.count(req.GrantType)
	return &TokenResponse{
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(client.AccessTokenTTL / time.Second),
		Scope:       strings.Join(scopes, " "),
	}, nil
}

// issueForUser signs the access token and, when the client may refresh,
// attaches either keep or a newly stored refresh token.
func (s *TokenService) issueForUser(ctx context.Context, client *model.RegisteredClient, user *model.User, scopes []string, grant, keep string) (*TokenResponse, error) {
	g := token.Grant{
		GrantType: grant,
		Subject:   strconv.FormatInt(user.ID, 10),
		ClientID:  client.ClientID,
		Scopes:    scopes,
		TTL:       client.AccessTokenTTL,
		Principal: user,
	}
	access, err := s.Issuer.Issue(ctx, g)
	if err != nil {
		return nil, err
	}
	resp := &TokenResponse{
		AccessToken: access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(client.AccessTokenTTL / time.Second),
		Scope:       strings.Join(scopes, " "),
	}

	if client.AllowsGrant(model.GrantRefreshToken) {
		resp.RefreshToken = keep
		if keep == "" {
			rt, err := utils.NewRefreshToken(s.Now(), client.RefreshTokenTTL)
			if err != nil {
				return nil, err
			}
			if err := s.Refresh.StoreRefresh(ctx, &model.RefreshToken{
				UserID:    user.ID,
				ClientID:  client.ClientID,
				Scope:     strings.Join(scopes, " "),
				TokenHash: utils.HashToken(rt.Raw),
				ExpiresAt: rt.Exp,
			}); err != nil {
				return nil, fmt.Errorf("store refresh token: %w", err)
			}
			resp.RefreshToken = rt.Raw
		}
	}

	if slices.Contains(scopes, scopeOpenID) {
		id, err := s.Issuer.IssueIDToken(ctx, g)
		if err != nil {
			return nil, err
		}
		resp.IDToken = id.Token
	}

	s.count(grant)
	s.Log.Info().Int64("user_id", user.ID).Str("client_id", client.ClientID).Str("grant_type", grant).Msg("access token issued")
	return resp, nil
}

func (s *TokenService) count(grant string) {
	if s.Issued != nil {
		s.Issued.WithLabelValues(grant).Inc()
	}
}

func resolveScopes(client *model.RegisteredClient, requested string) ([]string, error) {
	if strings.TrimSpace(requested) == "" {
		return slices.Clone(client.Scopes), nil
	}
	scopes := strings.Fields(requested)
	if !client.AllowsScopes(scopes) {
		return nil, oauthErr(OAuthInvalidScope, "scope not registered for client")
	}
	return scopes, nil
}

// AuthorizeRequest is the query of GET/POST /oauth2/authorize.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string
	State        string
}

// ValidateAuthorize checks the client part of an authorization request.
// Errors without RedirectURI must be shown to the user instead of being
// sent to an unverified redirect URI.
func (s *TokenService) ValidateAuthorize(ctx context.Context, req AuthorizeRequest) (*model.RegisteredClient, []string, error) {
	client, err := s.Clients.GetByClientID(ctx, req.ClientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, oauthErr(OAuthInvalidRequest, "unknown client_id")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup client: %w", err)
	}
	if !client.AllowsRedirect(req.RedirectURI) {
		return nil, nil, oauthErr(OAuthInvalidRequest, "redirect_uri is not registered")
	}

	fail := func(code, desc string) error {
		return &OAuthError{Code: code, Description: desc, RedirectURI: req.RedirectURI, State: req.State}
	}
	if req.ResponseType != "code" {
		return nil, nil, fail(OAuthUnsupportedResponseType, "only response_type=code is supported")
	}
	if !client.AllowsGrant(model.GrantAuthorizationCode) {
		return nil, nil, fail(OAuthUnauthorizedClient, "authorization_code not enabled for client")
	}
	scopes, err := resolveScopes(client, req.Scope)
	if err != nil {
		return nil, nil, fail(OAuthInvalidScope, "scope not registered for client")
	}
	return client, scopes, nil
}

// Authorize authenticates the resource owner, records consent and issues
// a single-use code. It returns the URL to redirect the browser to.
func (s *TokenService) Authorize(ctx context.Context, req AuthorizeRequest, username, password string, consent bool) (string, error) {
	client, scopes, err := s.ValidateAuthorize(ctx, req)
	if err != nil {
		return "", err
	}
	user, err := s.Accounts.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	if client.RequireConsent && !consent {
		s.Log.Info().Int64("user_id", user.ID).Str("client_id", client.ClientID).Msg("consent denied")
		return RedirectWithError(&OAuthError{Code: OAuthAccessDenied, Description: "consent denied",
			RedirectURI: req.RedirectURI, State: req.State})
	}

	code, err := utils.RandomHex(32)
	if err != nil {
		return "", err
	}
	if err := s.Codes.Save(ctx, code, model.AuthorizationCode{
		ClientID:    client.ClientID,
		RedirectURI: req.RedirectURI,
		UserID:      user.ID,
		Scopes:      scopes,
		IssuedAt:    s.Now().UTC(),
	}, s.CodeTTL); err != nil {
		return "", fmt.Errorf("save authorization code: %w", err)
	}

	return withQuery(req.RedirectURI, map[string]string{"code": code, "state": req.State})
}

// RedirectWithError renders a redirectable OAuthError as a redirect URL.
func RedirectWithError(e *OAuthError) (string, error) {
	return withQuery(e.RedirectURI, map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
		"state":             e.State,
	})
}

func withQuery(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse redirect uri: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Revoke invalidates a refresh token. Unknown tokens and tokens of other
// clients are ignored, as RFC 7009 requires.
func (s *TokenService) Revoke(ctx context.Context, client *model.RegisteredClient, raw string) error {
	hash := utils.HashToken(raw)
	rt, err := s.Refresh.GetByHash(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup refresh token: %w", err)
	}
	if rt.ClientID != client.ClientID {
		return nil
	}
	if err := s.Refresh.RevokeByHash(ctx, hash); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}

// RevokeAll invalidates every refresh token of a user.
func (s *TokenService) RevokeAll(ctx context.Context, userID int64) error {
	if err := s.Refresh.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.Log.Info().Int64("user_id", userID).Msg("refresh tokens revoked")
	return nil
}
