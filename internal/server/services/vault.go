package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/cryptox"
	"github.com/dmitrijs2005/cloakvault/internal/logging"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/repomanager"
)

// VaultService reads and writes the user's encrypted record. The password is
// supplied on every call and never stored.
type VaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *cryptox.Codec
	logger      logging.Logger
}

func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, codec *cryptox.Codec, logger logging.Logger) *VaultService {
	return &VaultService{
		db:          db,
		repomanager: m,
		codec:       codec,
		logger:      logger.With("module", "vault"),
	}
}

// Access returns the decrypted content of the user's latest record.
// It returns common.ErrorNotFound when there is none and
// common.ErrDecryptionFailed for a wrong password or damaged record.
func (s *VaultService) Access(ctx context.Context, userID, password string) (string, error) {
	if password == "" {
		return "", common.NewValidationError("Password is required")
	}

	rec, err := s.repomanager.Records(s.db).Get(ctx, userID)
	if err != nil {
		return "", err
	}

	if !rec.Encrypted {
		return string(rec.Ciphertext), nil
	}

	plaintext, err := s.codec.Decrypt(rec.Ciphertext, password, rec.Salt)
	if err != nil {
		s.logger.Info(ctx, "record decryption refused", "user_id", userID)
		return "", err
	}
	return plaintext, nil
}

// Store encrypts plaintext under password with a fresh salt and replaces the
// user's record of the given type.
func (s *VaultService) Store(ctx context.Context, userID, dataType, plaintext, password string) error {
	if password == "" {
		return common.NewValidationError("Password is required")
	}
	dataType = strings.TrimSpace(dataType)
	if dataType == "" {
		dataType = common.DefaultDataType
	}

	ciphertext, salt, err := s.codec.Encrypt(plaintext, password)
	if err != nil {
		return fmt.Errorf("error encrypting record: %w", err)
	}

	rec := &models.EncryptedRecord{
		UserID:     userID,
		DataType:   dataType,
		Ciphertext: ciphertext,
		Salt:       salt,
		Encrypted:  true,
	}
	if err := s.repomanager.Records(s.db).Put(ctx, rec); err != nil {
		return fmt.Errorf("error storing record: %w", err)
	}
	return nil
}
