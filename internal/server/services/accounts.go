package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"github.com/dmitrijs2005/cloakvault/internal/cryptox"
	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/logging"
	"github.com/dmitrijs2005/cloakvault/internal/server/models"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/repomanager"
	passwordvalidator "github.com/wagslane/go-password-validator"
)

const (
	MinUsernameLength      = 3
	MinPasswordLength      = 8
	PasswordMinEntropyBits = 50
)

var (
	ErrUsernameTaken = fmt.Errorf("username %w", common.ErrAlreadyExists)
	ErrEmailTaken    = fmt.Errorf("email %w", common.ErrAlreadyExists)
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Registrar creates users at the authentication provider.
type Registrar interface {
	SignUp(ctx context.Context, email, password string) (string, error)
}

type SignupRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Availability answers the check-username and check-email queries.
type Availability struct {
	Available bool
	Message   string
}

type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	registrar   Registrar
	codec       *cryptox.Codec
	logger      logging.Logger
	now         func() time.Time
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, registrar Registrar, codec *cryptox.Codec, logger logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: m,
		registrar:   registrar,
		codec:       codec,
		logger:      logger.With("module", "accounts"),
		now:         time.Now,
	}
}

// normalizeEmail is the canonical form used for every lookup and insert;
// the provider compares emails case-insensitively.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return common.NewValidationError("Password must be at least %d characters long", MinPasswordLength)
	}
	if err := passwordvalidator.Validate(password, PasswordMinEntropyBits); err != nil {
		return common.NewValidationError("Password is not strong enough: %v", err)
	}
	return nil
}

func (r *SignupRequest) normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = normalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
}

func (r *SignupRequest) validate() error {
	if r.Username == "" || r.Email == "" || r.Password == "" {
		return common.NewValidationError("Username, email, and password are required")
	}
	if len(r.Username) < MinUsernameLength {
		return common.NewValidationError("Username must be at least %d characters long", MinUsernameLength)
	}
	if !validEmail(r.Email) {
		return common.NewValidationError("Invalid email format")
	}
	return validatePassword(r.Password)
}

// Signup registers the user with the provider, then stores the local profile
// and an initial profile_info record encrypted under the signup password.
func (s *AccountService) Signup(ctx context.Context, req SignupRequest) (*models.Profile, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	taken, err := s.repomanager.Profiles(s.db).UsernameExists(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("error checking username: %w", err)
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	userID, err := s.registrar.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	now := s.now().UTC()
	summary := fmt.Sprintf("User %s %s signed up on %s", req.FirstName, req.LastName, now.Format(time.RFC3339))
	ciphertext, salt, err := s.codec.Encrypt(summary, req.Password)
	if err != nil {
		return nil, fmt.Errorf("error encrypting initial record: %w", err)
	}

	profile := &models.Profile{
		UserID:    userID,
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		CreatedAt: now,
	}
	record := &models.EncryptedRecord{
		UserID:     userID,
		DataType:   common.DefaultDataType,
		Ciphertext: ciphertext,
		Salt:       salt,
		Encrypted:  true,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Profiles(tx).Create(ctx, profile); err != nil {
			return fmt.Errorf("error creating profile: %w", err)
		}
		if err := s.repomanager.Records(tx).Put(ctx, record); err != nil {
			return fmt.Errorf("error storing initial record: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "signup incomplete, provider user has no profile", "user_id", userID, "err", err)
		return nil, err
	}

	s.logger.Info(ctx, "user signed up", "user_id", userID, "username", req.Username)
	return profile, nil
}

// UsernameAvailable validates username and reports whether it is free.
func (s *AccountService) UsernameAvailable(ctx context.Context, username string) (*Availability, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, common.NewValidationError("Username is required")
	}
	if len(username) < MinUsernameLength {
		return nil, common.NewValidationError("Username must be at least %d characters", MinUsernameLength)
	}

	taken, err := s.repomanager.Profiles(s.db).UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("error checking username: %w", err)
	}
	if taken {
		return &Availability{Message: "Username is already taken"}, nil
	}
	return &Availability{Available: true, Message: "Username is available"}, nil
}

// ValidateEmail checks the email format and whether a local profile already
// uses it.
func (s *AccountService) ValidateEmail(ctx context.Context, email string) (*Availability, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, common.NewValidationError("Email is required")
	}
	if !validEmail(email) {
		return nil, common.NewValidationError("Invalid email format")
	}

	_, err := s.repomanager.Profiles(s.db).UserIDByEmail(ctx, email)
	switch {
	case err == nil:
		return &Availability{Message: "Email is already registered"}, nil
	case errors.Is(err, common.ErrorNotFound):
		return &Availability{Available: true, Message: "Email format is valid"}, nil
	default:
		return nil, fmt.Errorf("error checking email: %w", err)
	}
}
