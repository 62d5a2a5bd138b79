// Package httpapi exposes the account, login and vault operations as a JSON
// HTTP API built on echo.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/logging"
	"github.com/dmitrijs2005/cloakvault/internal/server/lockout"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
	"github.com/dmitrijs2005/cloakvault/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

type Authenticator interface {
	Login(ctx context.Context, req services.LoginRequest) (*models.Session, error)
}

type Accounts interface {
	Signup(ctx context.Context, req services.SignupRequest) (*models.Profile, error)
	UsernameAvailable(ctx context.Context, username string) (*services.Availability, error)
	ValidateEmail(ctx context.Context, email string) (*services.Availability, error)
}

type Vault interface {
	Access(ctx context.Context, userID, password string) (string, error)
	Store(ctx context.Context, userID, dataType, plaintext, password string) error
}

type LockStatusChecker interface {
	CheckLockStatus(ctx context.Context, userID string) lockout.Status
}

// Pinger reports backend health. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the services behind the routes. Health may be nil.
type Deps struct {
	Auth     Authenticator
	Accounts Accounts
	Vault    Vault
	Locks    LockStatusChecker
	Health   Pinger
}

type Options struct {
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	address   string
	echo      *echo.Echo
	logger    logging.Logger
	opts      Options
	jwtSecret []byte

	auth     Authenticator
	accounts Accounts
	vault    Vault
	locks    LockStatusChecker
	health   Pinger
}

func NewServer(address string, l logging.Logger, deps Deps, opts Options) *Server {
	s := &Server{
		address:   address,
		echo:      echo.New(),
		logger:    l.With("module", "http_server"),
		opts:      opts,
		jwtSecret: []byte(opts.JWTSecret),
		auth:      deps.Auth,
		accounts:  deps.Accounts,
		vault:     deps.Vault,
		locks:     deps.Locks,
		health:    deps.Health,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.Use(middleware.Recover())
	e.Use(requestIDMiddleware())
	e.Use(s.requestLogger())

	api := e.Group("/api")
	api.GET("/health", s.handleHealth)

	limit := s.rateLimiter()
	api.POST("/login", s.handleLogin, limit)
	api.POST("/signup", s.handleSignup, limit)
	api.POST("/check-username", s.handleCheckUsername, limit)
	api.POST("/check-email", s.handleCheckEmail, limit)

	authn := s.bearerAuth()
	api.POST("/access-file", s.handleAccessFile, authn)
	api.PUT("/data", s.handleStoreData, authn)
	api.GET("/lock-status", s.handleLockStatus, authn)
}

// Handler returns the root handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown error", "err", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
