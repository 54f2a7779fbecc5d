package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/attendance"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/challenges"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/enrollments"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/identities"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/loginattempts"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/tasks"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// runs inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Identities(db dbx.DBTX) identities.Repository
	Enrollments(db dbx.DBTX) enrollments.Repository
	Challenges(db dbx.DBTX) challenges.Repository
	LoginAttempts(db dbx.DBTX) loginattempts.Repository
	Attendance(db dbx.DBTX) attendance.Repository
	Tasks(db dbx.DBTX) tasks.Repository
}
