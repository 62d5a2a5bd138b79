// Package records stores the per-user encrypted payloads. Two backends are
// available: the user_data table in PostgreSQL and one JSON object per user in
// S3-compatible object storage.
package records

import (
	"context"

	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

type Repository interface {
	// Get returns the user's most recently updated record, or
	// common.ErrorNotFound.
	Get(ctx context.Context, userID string) (*models.EncryptedRecord, error)

	// Put inserts or replaces the record identified by (UserID, DataType).
	Put(ctx context.Context, rec *models.EncryptedRecord) error
}
