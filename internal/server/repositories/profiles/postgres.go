package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, email, username, first_name, last_name, is_locked)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.UserID, p.Email, p.Username, nullIfEmpty(p.FirstName), nullIfEmpty(p.LastName), p.IsLocked)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UserIDByEmail(ctx context.Context, email string) (string, error) {
	query := `SELECT user_id FROM profiles WHERE lower(email) = lower($1)`

	var id string
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM profiles WHERE username = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) SetLocked(ctx context.Context, userID string, locked bool) error {
	query := `UPDATE profiles SET is_locked = $2 WHERE user_id = $1`

	if _, err := r.db.ExecContext(ctx, query, userID, locked); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
