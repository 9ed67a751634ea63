package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/service"
)

// AuthHandler serves registration and the JSON login shortcut for the
// default client.
type AuthHandler struct {
	Accounts      *service.Accounts
	Tokens        *service.TokenService
	LoginClientID string
}

func NewAuthHandler(accounts *service.Accounts, tokens *service.TokenService, loginClientID string) *AuthHandler {
	return &AuthHandler{Accounts: accounts, Tokens: tokens, LoginClientID: loginClientID}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role" validate:"required"`
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Scope    string `json:"scope"`
}

type logoutReq struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userResp struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func userView(u *model.User) userResp {
	return userResp{ID: u.ID, Username: u.Username, Roles: u.RoleNames()}
}

// Register handles POST /api/v1/auth/register. 409 when the username is
// taken, 404 for an unknown role.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Accounts.Register(c.Request().Context(), service.Registration{
		Username: req.Username, Password: req.Password, Role: req.Role,
	})
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/users/"+strconv.FormatInt(u.ID, 10))
	return c.JSON(http.StatusCreated, userView(u))
}

// Login runs the password grant for the login client and returns the
// token response.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	client, err := h.Tokens.Clients.GetByClientID(ctx, h.LoginClientID)
	if err != nil {
		return err
	}
	resp, err := h.Tokens.Token(ctx, client, service.TokenRequest{
		GrantType: model.GrantPassword,
		Username:  req.Username,
		Password:  req.Password,
		Scope:     req.Scope,
	})
	var oe *service.OAuthError
	if errors.As(err, &oe) && oe.Code == service.OAuthInvalidGrant {
		return service.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes a refresh token issued to the login client.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	client, err := h.Tokens.Clients.GetByClientID(ctx, h.LoginClientID)
	if err != nil {
		return err
	}
	if err := h.Tokens.Revoke(ctx, client, req.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
