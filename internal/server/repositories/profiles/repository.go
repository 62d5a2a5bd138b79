// Package profiles stores the local user profiles, including the mirrored
// is_locked flag maintained by the lockout engine.
package profiles

import (
	"context"

	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

type Repository interface {
	// Create inserts a profile. A duplicate user id, email or username yields
	// common.ErrAlreadyExists.
	Create(ctx context.Context, p *models.Profile) error

	// UserIDByEmail resolves an email to a user id, ignoring case, or returns
	// common.ErrorNotFound.
	UserIDByEmail(ctx context.Context, email string) (string, error)

	UsernameExists(ctx context.Context, username string) (bool, error)

	// SetLocked updates the denormalised lock flag. Updating a missing
	// profile is not an error.
	SetLocked(ctx context.Context, userID string, locked bool) error
}
