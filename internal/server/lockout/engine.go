// Package lockout implements the adaptive account lockout policy: it records
// login attempts, decides when repeated failures lock an account and reports
// the current lock state. All state lives in the injected stores, so any
// number of engine instances may share one database.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/logging"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

type AttemptLedger interface {
	Insert(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailedSince(ctx context.Context, userID string, since time.Time) (int, error)
	DeleteFailed(ctx context.Context, userID string) (int64, error)
}

type LockStore interface {
	Latest(ctx context.Context, userID string) (*models.AccountLock, error)
	Count(ctx context.Context, userID string) (int, error)
	Insert(ctx context.Context, lock *models.AccountLock) error
	CreatedSince(ctx context.Context, userID string, since time.Time) (bool, error)
}

// ProfileFlag is the denormalised is_locked flag kept on the user's profile.
type ProfileFlag interface {
	SetLocked(ctx context.Context, userID string, locked bool) error
}

// Serializer runs fn so that no other lock decision for the same user runs
// concurrently, handing it the lock store to use for the duration of the call.
// Whatever fn wrote must be durable once the Serializer returns nil.
type Serializer func(ctx context.Context, userID string, fn func(ctx context.Context, locks LockStore) error) error

// Status is the result of CheckLockStatus.
type Status struct {
	Locked           bool
	RemainingSeconds int
	Message          string
}

// Decision is the result of EvaluateThreshold.
type Decision struct {
	Locked              bool
	Message             string
	LockDurationSeconds int
}

const (
	msgNotLocked    = "Not locked."
	msgLockExpired  = "Lock expired."
	msgInvalidCreds = "Invalid email or password"
)

type Engine struct {
	attempts  AttemptLedger
	locks     LockStore
	flag      ProfileFlag
	policy    Policy
	logger    logging.Logger
	now       func() time.Time
	serialize Serializer
}

type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSerializer makes EvaluateThreshold create locks through s. Without it
// the check-then-insert sequence is guarded by the dedupe window only.
func WithSerializer(s Serializer) Option {
	return func(e *Engine) { e.serialize = s }
}

func NewEngine(attempts AttemptLedger, locks LockStore, flag ProfileFlag, policy Policy, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		attempts: attempts,
		locks:    locks,
		flag:     flag,
		policy:   policy.withDefaults(),
		logger:   logger.With("module", "lockout"),
		now:      time.Now,
	}
	e.serialize = func(ctx context.Context, _ string, fn func(context.Context, LockStore) error) error {
		return fn(ctx, e.locks)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the effective policy after defaults were applied.
func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) utcNow() time.Time { return e.now().UTC() }

// CheckLockStatus reports whether the user's most recent lock is still in
// force. It never fails: a store error is logged and the user is reported as
// unlocked.
func (e *Engine) CheckLockStatus(ctx context.Context, userID string) Status {
	lock, err := e.locks.Latest(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return Status{Message: msgNotLocked}
	}
	if err != nil {
		e.logger.Warn(ctx, "lock status unavailable, treating account as unlocked", "user_id", userID, "err", err)
		return Status{Message: msgNotLocked}
	}

	now := e.utcNow()
	if !now.Before(lock.UnlockAt) {
		return Status{Message: msgLockExpired}
	}

	secs := ceilSeconds(lock.UnlockAt.Sub(now))
	return Status{
		Locked:           true,
		RemainingSeconds: secs,
		Message:          fmt.Sprintf("Account locked. Try again in %d minutes %d seconds.", secs/60, secs%60),
	}
}

// RecordAttempt appends the attempt to the ledger. A zero Timestamp is set to
// the current time. Write failures are logged and otherwise ignored.
func (e *Engine) RecordAttempt(ctx context.Context, a *models.LoginAttempt) {
	if a.Timestamp.IsZero() {
		a.Timestamp = e.utcNow()
	}
	if err := e.attempts.Insert(ctx, a); err != nil {
		e.logger.Error(ctx, "failed to record login attempt", "identifier", a.Identifier, "success", a.Success, "err", err)
	}
}

// EvaluateThreshold is called after a failed attempt. When the user reached
// MaxFailedAttempts within the counting window it creates a lock and returns a
// locked Decision carrying the lock duration. A lock created within
// DedupeWindow that is still in force is reused instead, and the Decision
// carries its remaining time. Store errors are returned to the caller.
func (e *Engine) EvaluateThreshold(ctx context.Context, userID string) (Decision, error) {
	now := e.utcNow()

	failures, err := e.attempts.CountFailedSince(ctx, userID, now.Add(-e.policy.Window()))
	if err != nil {
		return Decision{}, fmt.Errorf("count failed attempts: %w", err)
	}
	if failures < e.policy.MaxFailedAttempts {
		return Decision{Message: msgInvalidCreds}, nil
	}

	var (
		d       Decision
		created bool
	)
	err = e.serialize(ctx, userID, func(ctx context.Context, locks LockStore) error {
		recent, err := locks.CreatedSince(ctx, userID, now.Add(-e.policy.DedupeWindow))
		if err != nil {
			return fmt.Errorf("check recent lock: %w", err)
		}
		if recent {
			latest, err := locks.Latest(ctx, userID)
			if err != nil {
				return fmt.Errorf("load recent lock: %w", err)
			}
			// an expired lock does not suppress a new one
			if now.Before(latest.UnlockAt) {
				d = lockedDecision(latest.UnlockAt.Sub(now))
				return nil
			}
		}

		prior, err := locks.Count(ctx, userID)
		if err != nil {
			return fmt.Errorf("count locks: %w", err)
		}

		duration := e.policy.lockDuration(prior)
		lock := &models.AccountLock{
			UserID:              userID,
			LockedAt:            now,
			UnlockAt:            now.Add(duration),
			FailedAttemptsCount: failures,
		}
		if err := locks.Insert(ctx, lock); err != nil {
			return fmt.Errorf("insert lock: %w", err)
		}

		e.logger.Info(ctx, "account locked",
			"user_id", userID, "failed_attempts", failures, "prior_locks", prior, "duration", duration)
		d = lockedDecision(duration)
		created = true
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	// after the serialized section; a flag failure leaves the lock in place
	if created {
		if err := e.flag.SetLocked(ctx, userID, true); err != nil {
			e.logger.Warn(ctx, "failed to set profile lock flag", "user_id", userID, "err", err)
		}
	}
	return d, nil
}

// ResetOnSuccess deletes the user's failed attempts so the counting window
// starts over, and clears the profile lock flag.
func (e *Engine) ResetOnSuccess(ctx context.Context, userID string) error {
	var errs []error
	if _, err := e.attempts.DeleteFailed(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("delete failed attempts: %w", err))
	}
	if err := e.flag.SetLocked(ctx, userID, false); err != nil {
		errs = append(errs, fmt.Errorf("clear lock flag: %w", err))
	}
	return errors.Join(errs...)
}

func lockedDecision(d time.Duration) Decision {
	secs := ceilSeconds(d)
	msg := fmt.Sprintf("Account locked for %d minutes.", secs/60)
	if secs < 60 {
		msg = fmt.Sprintf("Account locked for %d seconds.", secs)
	}
	return Decision{Locked: true, Message: msg, LockDurationSeconds: secs}
}

// ceilSeconds rounds up so a lock that is still in force never reports zero.
func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
