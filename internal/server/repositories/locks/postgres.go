package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Latest(ctx context.Context, userID string) (*models.AccountLock, error) {
	query := `
		SELECT lock_id, user_id, locked_at, unlock_at, failed_attempts_count
		FROM account_locks
		WHERE user_id = $1
		ORDER BY locked_at DESC
		LIMIT 1
	`
	l := &models.AccountLock{}
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&l.ID, &l.UserID, &l.LockedAt, &l.UnlockAt, &l.FailedAttemptsCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	l.LockedAt = l.LockedAt.UTC()
	l.UnlockAt = l.UnlockAt.UTC()
	return l, nil
}

func (r *PostgresRepository) Count(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM account_locks WHERE user_id = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, l *models.AccountLock) error {
	query := `
		INSERT INTO account_locks (user_id, locked_at, unlock_at, failed_attempts_count)
		VALUES ($1, $2, $3, $4)
		RETURNING lock_id
	`
	err := r.db.QueryRowContext(ctx, query,
		l.UserID, l.LockedAt, l.UnlockAt, l.FailedAttemptsCount).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreatedSince(ctx context.Context, userID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM account_locks
			WHERE user_id = $1 AND locked_at >= $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) AcquireUserLock(ctx context.Context, userID string) error {
	query := `SELECT pg_advisory_xact_lock(hashtext($1))`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
