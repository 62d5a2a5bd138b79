// Package locks declares the append-only store of account lock events.
package locks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

type Repository interface {
	// Latest returns the user's most recent lock by locked_at, or
	// common.ErrorNotFound when the user was never locked.
	Latest(ctx context.Context, userID string) (*models.AccountLock, error)

	// Count returns how many locks were ever created for the user.
	Count(ctx context.Context, userID string) (int, error)

	// Insert appends a lock and fills in its ID.
	Insert(ctx context.Context, lock *models.AccountLock) error

	// CreatedSince reports whether a lock for the user was created at or after since.
	CreatedSince(ctx context.Context, userID string, since time.Time) (bool, error)

	// AcquireUserLock takes a transaction-scoped advisory lock keyed by the
	// user id. It only serialises anything when called inside a transaction.
	AcquireUserLock(ctx context.Context, userID string) error
}
