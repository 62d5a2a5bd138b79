package attempts

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, a *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (user_id, username_attempted, success, failure_reason, ip_address, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING attempt_id
	`
	err := r.db.QueryRowContext(ctx, query,
		a.UserID, a.Identifier, a.Success, a.FailureReason, a.SourceIP, a.Timestamp).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CountFailedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempted_at >= $2
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteFailed(ctx context.Context, userID string) (int64, error) {
	query := `
		DELETE FROM login_attempts
		WHERE user_id = $1 AND success = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
