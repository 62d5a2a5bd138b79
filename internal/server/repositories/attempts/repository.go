// Package attempts declares the append-only login attempt ledger and its
// PostgreSQL implementation.
package attempts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

// Repository is the attempt ledger consumed by the lockout engine.
type Repository interface {
	// Insert appends one attempt. Rows are never updated afterwards.
	Insert(ctx context.Context, attempt *models.LoginAttempt) error

	// CountFailedSince counts the user's failed attempts with a timestamp at or
	// after since.
	CountFailedSince(ctx context.Context, userID string, since time.Time) (int, error)

	// DeleteFailed removes the user's failed attempts and reports how many
	// rows were removed.
	DeleteFailed(ctx context.Context, userID string) (int64, error)
}
