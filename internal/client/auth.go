package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Token is the token endpoint's success response.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
}

// AuthConfig identifies this client to the authorization server.
type AuthConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// AuthClient drives the authorization code flow against the auth server.
type AuthClient struct {
	cfg AuthConfig
	t   *transport
}

func NewAuthClient(cfg AuthConfig, hc *http.Client, log zerolog.Logger) *AuthClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &AuthClient{cfg: cfg, t: newTransport("auth-server", hc, log)}
}

// AuthorizeURL is where the browser is sent to log in.
func (c *AuthClient) AuthorizeURL(state string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"scope":         {strings.Join(c.cfg.Scopes, " ")},
		"state":         {state},
	}
	return c.cfg.BaseURL + "/oauth2/authorize?" + q.Encode()
}

// Exchange trades an authorization code for tokens.
func (c *AuthClient) Exchange(ctx context.Context, code string) (*Token, error) {
	return c.token(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.cfg.RedirectURI},
	})
}

// Refresh obtains a new access token.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	return c.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

// Revoke invalidates a refresh token.
func (c *AuthClient) Revoke(ctx context.Context, refreshToken string) error {
	_, err := c.post(ctx, "/oauth2/revoke", url.Values{"token": {refreshToken}})
	return err
}

func (c *AuthClient) token(ctx context.Context, form url.Values) (*Token, error) {
	b, err := c.post(ctx, "/oauth2/token", form)
	if err != nil {
		return nil, err
	}
	var tok Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tok, nil
}

func (c *AuthClient) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))
	return c.t.do(req)
}
