package repomanager

import (
	"context"
	"database/sql"

	"github.com/pgElephant/ramd/internal/dbx"
	"github.com/pgElephant/ramd/internal/server/repositories/auditentries"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	AuditEntries(db dbx.DBTX) auditentries.Repository
}
