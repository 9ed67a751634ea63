package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/middleware"
	"github.com/learntrack/learntrack/internal/service"
)

// AccountHandler serves the authenticated account and admin endpoints
// of the authorization server.
type AccountHandler struct {
	Accounts *service.Accounts
	Tokens   *service.TokenService
	Checker  *authz.Checker
}

type roleReq struct {
	RoleID int64 `json:"roleId" validate:"gt=0"`
}

type renameReq struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
}

// MyRoles handles GET /api/v1/user/roles.
func (h *AccountHandler) MyRoles(c echo.Context) error {
	u, err := h.Accounts.User(c.Request().Context(), middleware.PrincipalFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u.Roles)
}

// AddMyRole handles PUT /api/v1/user/roles. Admin only.
func (h *AccountHandler) AddMyRole(c echo.Context) error {
	var req roleReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Accounts.GrantRole(c.Request().Context(), middleware.PrincipalFrom(c).UserID, req.RoleID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userView(u))
}

// RemoveMyRole handles DELETE /api/v1/user/roles/:roleId.
func (h *AccountHandler) RemoveMyRole(c echo.Context) error {
	roleID, err := pathID(c, "roleId")
	if err != nil {
		return err
	}
	u, err := h.Accounts.RevokeRole(c.Request().Context(), middleware.PrincipalFrom(c).UserID, roleID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userView(u))
}

// RevokeMyTokens handles DELETE /api/v1/user/tokens: every refresh token
// of the caller stops working.
func (h *AccountHandler) RevokeMyTokens(c echo.Context) error {
	if err := h.Tokens.RevokeAll(c.Request().Context(), middleware.PrincipalFrom(c).UserID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Rename handles PUT /api/v1/users/:id for the user themself or an admin.
func (h *AccountHandler) Rename(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	p := middleware.PrincipalFrom(c)
	if p.Anonymous() {
		return h.Checker.CheckAuthenticated(ctx, p, authz.ActionUpdate, authz.KindUser, id)
	}
	target, err := h.Accounts.User(ctx, id)
	if err != nil {
		return err
	}
	if err := h.Checker.CheckMutationAllowed(ctx, p, authz.ActionUpdate, target); err != nil {
		return err
	}
	var req renameReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Accounts.Rename(ctx, id, req.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userView(u))
}

// Roles handles GET /api/v1/roles. Admin only.
func (h *AccountHandler) Roles(c echo.Context) error {
	roles, err := h.Accounts.Roles(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, roles)
}

// AddAuthority handles PUT /api/v1/roles/:id/authorities/:authority.
func (h *AccountHandler) AddAuthority(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	role, err := h.Accounts.AddAuthority(c.Request().Context(), id, c.Param("authority"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, role)
}

// RemoveAuthority handles DELETE /api/v1/roles/:id/authorities/:authority.
func (h *AccountHandler) RemoveAuthority(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	role, err := h.Accounts.RemoveAuthority(c.Request().Context(), id, c.Param("authority"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, role)
}
