package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/logging"
	"github.com/dmitrijs2005/cloakvault/internal/server/lockout"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
	"github.com/dmitrijs2005/cloakvault/internal/server/provider"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/repomanager"
)

// CredentialVerifier checks an email/password pair with the authentication
// provider.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) provider.Result
}

// LockoutPolicy is the part of the lockout engine used by the login flow.
type LockoutPolicy interface {
	CheckLockStatus(ctx context.Context, userID string) lockout.Status
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt)
	EvaluateThreshold(ctx context.Context, userID string) (lockout.Decision, error)
	ResetOnSuccess(ctx context.Context, userID string) error
}

type LoginRequest struct {
	Email    string
	Password string
	SourceIP string
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	verifier    CredentialVerifier
	lockout     LockoutPolicy
	logger      logging.Logger
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, verifier CredentialVerifier, policy LockoutPolicy, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		verifier:    verifier,
		lockout:     policy,
		logger:      logger.With("module", "auth"),
	}
}

// Login authenticates the user with the provider, guarded by the lockout
// policy.
//
// Errors:
//   - *common.ValidationError when email or password is missing;
//   - *common.LockedError when the account is locked, either already or as a
//     result of this failure;
//   - common.ErrInvalidCredentials for a rejected email/password pair,
//     including when the lock evaluation itself fails;
//   - common.ErrorInternal when the provider is unavailable.
//
// Lockout only applies to emails that resolve to a known profile.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*models.Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, common.NewValidationError("Email and password are required")
	}

	userID := s.resolveUserID(ctx, email)

	if userID != "" {
		if st := s.lockout.CheckLockStatus(ctx, userID); st.Locked {
			return nil, &common.LockedError{Seconds: st.RemainingSeconds, Message: st.Message}
		}
	}

	res := s.verifier.VerifyCredentials(ctx, email, req.Password)

	switch {
	case res.OK():
		uid := res.Session.UserID
		s.lockout.RecordAttempt(ctx, s.attempt(&uid, email, req.SourceIP, true, ""))
		if err := s.lockout.ResetOnSuccess(ctx, uid); err != nil {
			s.logger.Warn(ctx, "failed to reset lockout state", "user_id", uid, "err", err)
		}
		return res.Session, nil

	case res.Reason == provider.ReasonUnavailable:
		s.lockout.RecordAttempt(ctx, s.attempt(optional(userID), email, req.SourceIP, false, res.Reason.String()))
		s.logger.Error(ctx, "credential check failed", "err", res.Err)
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, res.Err)
	}

	s.lockout.RecordAttempt(ctx, s.attempt(optional(userID), email, req.SourceIP, false, provider.ReasonInvalidCredentials.String()))
	if userID == "" {
		return nil, common.ErrInvalidCredentials
	}

	d, err := s.lockout.EvaluateThreshold(ctx, userID)
	if err != nil {
		s.logger.Error(ctx, "lock evaluation failed", "user_id", userID, "err", err)
		return nil, common.ErrInvalidCredentials
	}
	if d.Locked {
		return nil, &common.LockedError{Seconds: d.LockDurationSeconds, Message: d.Message, NewlyLocked: true}
	}
	return nil, common.ErrInvalidCredentials
}

// resolveUserID returns "" when the email is unknown or the lookup fails.
func (s *AuthService) resolveUserID(ctx context.Context, email string) string {
	id, err := s.repomanager.Profiles(s.db).UserIDByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "user lookup failed", "err", err)
		}
		return ""
	}
	return id
}

func (s *AuthService) attempt(userID *string, email, ip string, success bool, reason string) *models.LoginAttempt {
	return &models.LoginAttempt{
		UserID:        userID,
		Identifier:    email,
		Success:       success,
		FailureReason: optional(reason),
		SourceIP:      optional(ip),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
