package service

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrRoleNotFound       = errors.New("role not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrAuthorityNotFound  = errors.New("authority not found")
)

// RFC 6749 error codes.
const (
	OAuthInvalidRequest          = "invalid_request"
	OAuthInvalidClient           = "invalid_client"
	OAuthInvalidGrant            = "invalid_grant"
	OAuthUnauthorizedClient      = "unauthorized_client"
	OAuthUnsupportedGrantType    = "unsupported_grant_type"
	OAuthUnsupportedResponseType = "unsupported_response_type"
	OAuthInvalidScope            = "invalid_scope"
	OAuthAccessDenied            = "access_denied"
)

// OAuthError is an RFC 6749 error. RedirectURI is set on authorization
// errors that may be reported back to the client's redirect URI.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	RedirectURI string `json:"-"`
	State       string `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Status is the HTTP status used on the token endpoint.
func (e *OAuthError) Status() int {
	if e.Code == OAuthInvalidClient {
		return http.StatusUnauthorized
	}
	return http.StatusBadRequest
}

func oauthErr(code, desc string) *OAuthError {
	return &OAuthError{Code: code, Description: desc}
}
