package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/server/services"
	"github.com/labstack/echo/v4"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type usernameRequest struct {
	Username string `json:"username"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type accessRequest struct {
	Password string `json:"password"`
}

type storeRequest struct {
	DataType string `json:"data_type"`
	Data     string `json:"data"`
	Password string `json:"password"`
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
}

func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	session, err := s.auth.Login(c.Request().Context(), services.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		SourceIP: c.RealIP(),
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Login successful!",
		"access_token":  session.AccessToken,
		"refresh_token": session.RefreshToken,
	})
}

func (s *Server) handleSignup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	profile, err := s.accounts.Signup(c.Request().Context(), services.SignupRequest{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"success":  true,
		"message":  "User account created successfully",
		"user_id":  profile.UserID,
		"username": profile.Username,
		"email":    profile.Email,
	})
}

func (s *Server) handleCheckUsername(c echo.Context) error {
	var req usernameRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	res, err := s.accounts.UsernameAvailable(c.Request().Context(), req.Username)
	return s.availability(c, res, err)
}

func (s *Server) handleCheckEmail(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	res, err := s.accounts.ValidateEmail(c.Request().Context(), req.Email)
	return s.availability(c, res, err)
}

// availability keeps the {available,message} shape for validation failures too.
func (s *Server) availability(c echo.Context, res *services.Availability, err error) error {
	var verr *common.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]any{"available": false, "message": verr.Message})
	case err != nil:
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"available": res.Available, "message": res.Message})
}

func (s *Server) handleAccessFile(c echo.Context) error {
	var req accessRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	data, err := s.vault.Access(c.Request().Context(), currentUserID(c), req.Password)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":        true,
		"decrypted_data": data,
	})
}

func (s *Server) handleStoreData(c echo.Context) error {
	var req storeRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}

	if err := s.vault.Store(c.Request().Context(), currentUserID(c), req.DataType, req.Data, req.Password); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLockStatus(c echo.Context) error {
	st := s.locks.CheckLockStatus(c.Request().Context(), currentUserID(c))
	return c.JSON(http.StatusOK, map[string]any{
		"locked":            st.Locked,
		"remaining_seconds": st.RemainingSeconds,
		"message":           st.Message,
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health.PingContext(c.Request().Context()); err != nil {
			s.logger.Warn(c.Request().Context(), "health check failed", "err", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":  "unhealthy",
				"message": "Database unavailable",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"message": "Server is running",
	})
}
