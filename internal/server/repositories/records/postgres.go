package records

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
)

// PostgresRepository keeps ciphertext and salt as base64 text. Legacy rows
// with encrypted = false hold the plaintext as is.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.EncryptedRecord, error) {
	query := `
		SELECT user_id, data_type, data_content, salt, encrypted, updated_at
		FROM user_data
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var (
		rec     models.EncryptedRecord
		content string
		salt    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&rec.UserID, &rec.DataType, &content, &salt, &rec.Encrypted, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if !rec.Encrypted {
		rec.Ciphertext = []byte(content)
		return &rec, nil
	}

	rec.Ciphertext, err = base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("decode data_content: %w", err)
	}
	if salt.Valid {
		rec.Salt, err = base64.StdEncoding.DecodeString(salt.String)
		if err != nil {
			return nil, fmt.Errorf("decode salt: %w", err)
		}
	}
	return &rec, nil
}

func (r *PostgresRepository) Put(ctx context.Context, rec *models.EncryptedRecord) error {
	query := `
		INSERT INTO user_data (user_id, data_type, data_content, salt, encrypted, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id, data_type) DO UPDATE
		SET data_content = EXCLUDED.data_content,
		    salt = EXCLUDED.salt,
		    encrypted = EXCLUDED.encrypted,
		    updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`
	content := string(rec.Ciphertext)
	var salt sql.NullString
	if rec.Encrypted {
		content = base64.StdEncoding.EncodeToString(rec.Ciphertext)
		salt = sql.NullString{String: base64.StdEncoding.EncodeToString(rec.Salt), Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		rec.UserID, rec.DataType, content, salt, rec.Encrypted).Scan(&rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
