package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/server/auth"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// bearerAuth validates "Authorization: Bearer <token>" and stores the token
// subject under common.UserIDContextKey.
func (s *Server) bearerAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return c.JSON(http.StatusUnauthorized, errorBody("Not authenticated"))
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				return c.JSON(http.StatusUnauthorized, errorBody("Invalid authorization header format"))
			}

			userID, err := auth.GetUserIDFromToken(parts[1], s.jwtSecret)
			if err != nil {
				return s.fail(c, err)
			}

			c.Set(common.UserIDContextKey, userID)
			return next(c)
		}
	}
}

func currentUserID(c echo.Context) string {
	id, _ := c.Get(common.UserIDContextKey).(string)
	return id
}

// rateLimiter throttles the unauthenticated routes per client IP. A
// non-positive rate disables it.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	if s.opts.RateLimitRPS <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.opts.RateLimitRPS),
		Burst:     s.opts.RateLimitBurst,
		ExpiresIn: 3 * time.Minute,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, errorBody("Forbidden"))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			s.logger.Warn(c.Request().Context(), "rate limit exceeded", "ip", identifier)
			return c.JSON(http.StatusTooManyRequests, errorBody("Too many requests"))
		},
	})
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info(c.Request().Context(), "request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			)
			return nil
		},
	})
}

func requestIDMiddleware() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	})
}
