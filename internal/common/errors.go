// Package common defines shared sentinel errors and typed errors used across
// the repository, service and transport layers of cloakvault. Callers should
// use errors.Is / errors.As to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound       = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrStoreUnavailable = errors.New("store unavailable")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned for a wrong email/password pair. The
	// message must not reveal whether the email is registered.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrDecryptionFailed covers both a wrong password and corrupted
	// ciphertext. The two cases are deliberately indistinguishable.
	ErrDecryptionFailed = errors.New("decryption failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError reports malformed client input. Message is safe to show to
// the client verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// LockedError is returned when a login is refused because the account is
// locked. Seconds is the remaining lock time for an already existing lock, or
// the full lock duration when the current request created the lock
// (NewlyLocked).
type LockedError struct {
	Seconds     int
	Message     string
	NewlyLocked bool
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %ds", e.Seconds)
}
