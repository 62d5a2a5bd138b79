package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/server/services"
	"github.com/labstack/echo/v4"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgDecryptionFailed   = "Decryption failed. Invalid password."
	msgNoRecord           = "No data file found for this user"
	msgInternal           = "An internal server error occurred"
)

// statusFor maps a service error to an HTTP status and a client-safe body.
// Only validation messages are passed through verbatim; everything else gets
// a fixed text.
func statusFor(err error) (int, map[string]any) {
	var (
		verr   *common.ValidationError
		locked *common.LockedError
	)

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody(verr.Message)

	case errors.As(err, &locked):
		body := map[string]any{
			"error":                    "account_locked",
			"message":                  locked.Message,
			"lockout_duration_seconds": locked.Seconds,
		}
		if !locked.NewlyLocked {
			body["remaining_seconds"] = locked.Seconds
		}
		return http.StatusTooManyRequests, body

	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody(msgInvalidCredentials)

	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, errorBody("Token expired")

	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, errorBody("Not authenticated")

	case errors.Is(err, common.ErrDecryptionFailed):
		return http.StatusForbidden, errorBody(msgDecryptionFailed)

	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, errorBody(msgNoRecord)

	case errors.Is(err, services.ErrUsernameTaken):
		return http.StatusConflict, errorBody("Username already exists")

	case errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict, errorBody("Email already registered")

	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, errorBody("Already exists")
	}

	return http.StatusInternalServerError, errorBody(msgInternal)
}

func errorBody(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// fail writes the mapped error response. Server-side failures are logged with
// the underlying cause, which never reaches the client.
func (s *Server) fail(c echo.Context, err error) error {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed",
			"path", c.Path(), "request_id", requestID(c), "err", err)
	}
	return c.JSON(status, body)
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
