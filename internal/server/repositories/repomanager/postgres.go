// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/server/migrations"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/attempts"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/locks"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/records"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook. When an external record store is set,
// Records returns it instead of the user_data table.
type PostgresRepositoryManager struct {
	recordStore records.Repository
}

// Attempts returns the login attempt ledger bound to the provided DBTX.
func (m *PostgresRepositoryManager) Attempts(db dbx.DBTX) attempts.Repository {
	return attempts.NewPostgresRepository(db)
}

// Locks returns the account lock store bound to the provided DBTX.
func (m *PostgresRepositoryManager) Locks(db dbx.DBTX) locks.Repository {
	return locks.NewPostgresRepository(db)
}

// Profiles returns the profile repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Profiles(db dbx.DBTX) profiles.Repository {
	return profiles.NewPostgresRepository(db)
}

// Records returns the encrypted record store. The external store, if any,
// ignores db and does not take part in transactions.
func (m *PostgresRepositoryManager) Records(db dbx.DBTX) records.Repository {
	if m.recordStore != nil {
		return m.recordStore
	}
	return records.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// Option customises a PostgresRepositoryManager.
type Option func(*PostgresRepositoryManager)

// WithRecordStore makes Records return store, e.g. an S3Repository.
func WithRecordStore(store records.Repository) Option {
	return func(m *PostgresRepositoryManager) {
		m.recordStore = store
	}
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(opts ...Option) RepositoryManager {
	m := &PostgresRepositoryManager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
