// Package models defines the server-side data models persisted by the
// repositories.
package models

import "time"

// LoginAttempt is one row of the append-only attempt ledger. UserID is nil
// when the identifier could not be resolved to a user.
type LoginAttempt struct {
	ID            int64
	UserID        *string
	Identifier    string
	Success       bool
	FailureReason *string
	SourceIP      *string
	Timestamp     time.Time
}

// AccountLock is an immutable lockout event. A user is locked while the
// UnlockAt of their most recent lock lies in the future.
type AccountLock struct {
	ID                  int64
	UserID              string
	LockedAt            time.Time
	UnlockAt            time.Time
	FailedAttemptsCount int
}

// EncryptedRecord is the per-user protected payload. Ciphertext and Salt are
// raw bytes here; repositories decide how to encode them at rest. Encrypted is
// false for legacy plaintext rows.
type EncryptedRecord struct {
	UserID     string
	DataType   string
	Ciphertext []byte
	Salt       []byte
	Encrypted  bool
	UpdatedAt  time.Time
}

// Profile mirrors the identity provider's user with local attributes.
// IsLocked is a denormalised view of the lock state.
type Profile struct {
	UserID    string
	Email     string
	Username  string
	FirstName string
	LastName  string
	IsLocked  bool
	CreatedAt time.Time
}

// Session is what the authentication provider hands out on a successful
// credential check.
type Session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}
