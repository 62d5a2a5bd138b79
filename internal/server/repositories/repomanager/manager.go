package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cloakvault/internal/dbx"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/attempts"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/locks"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/cloakvault/internal/server/repositories/records"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Attempts(db dbx.DBTX) attempts.Repository
	Locks(db dbx.DBTX) locks.Repository
	Profiles(db dbx.DBTX) profiles.Repository
	Records(db dbx.DBTX) records.Repository
}
