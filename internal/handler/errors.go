package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/learntrack/learntrack/internal/authz"
	"github.com/learntrack/learntrack/internal/repository"
	"github.com/learntrack/learntrack/internal/service"
)

// NotFoundError reports an unknown id or a child requested under the
// wrong parent.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Kind, e.ID) }

// ValidationError maps request fields to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(name, "must be a positive integer")
	}
	return id, nil
}

// ErrorHandler translates handler errors into JSON responses.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := translate(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error().Err(err).Msg("write error response")
		}
	}
}

func translate(err error) (int, any) {
	var (
		nf  *NotFoundError
		ve  *ValidationError
		oe  *service.OAuthError
		he  *echo.HTTPError
		msg = func(s string) echo.Map { return echo.Map{"error": s} }
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Fields
	case errors.As(err, &nf):
		return http.StatusNotFound, msg(nf.Error())
	case errors.As(err, &oe):
		return oe.Status(), oe
	case errors.Is(err, authz.ErrUnauthorized), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, msg(err.Error())
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden, msg(err.Error())
	case errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict, msg(err.Error())
	case errors.Is(err, service.ErrRoleNotFound), errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrAuthorityNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, msg(err.Error())
	case errors.As(err, &he):
		if m, ok := he.Message.(string); ok {
			return he.Code, msg(m)
		}
		return he.Code, echo.Map{"error": he.Message}
	}
	return http.StatusInternalServerError, msg("internal server error")
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
