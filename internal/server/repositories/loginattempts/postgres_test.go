package loginattempts

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestAppend_UnknownUserHasNullIdentity(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+login_attempts\s*\(.*\)\s*VALUES\s*\(\$1,.*\$9\)\s*RETURNING\s+id\s*$`).
		WithArgs("ghost", sql.NullString{}, "login", false, models.ReasonUnknownUser, "10.0.0.1", 0.0, "", at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a-1"))

	a := &models.LoginAttempt{
		Username: "ghost", Operation: "login", FailureReason: models.ReasonUnknownUser, SourceAddress: "10.0.0.1", CreatedAt: at,
	}
	if err := repo.Append(context.Background(), a); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if a.ID != "a-1" {
		t.Fatalf("ID = %q", a.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAppend_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+login_attempts`).WillReturnError(errors.New("db down"))

	err := repo.Append(context.Background(), &models.LoginAttempt{Username: "alice", IdentityID: "id-1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListByUsername(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	cols := []string{"id", "username", "identity_id", "operation", "success", "failure_reason", "source_address", "similarity", "transcript", "created_at"}
	mock.ExpectQuery(`(?s)FROM\s+login_attempts\s+WHERE\s+username\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$2`).
		WithArgs("alice", 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a-2", "alice", "id-1", "login", true, "", "10.0.0.1", 0.91, "calm owl reads beside 12", at).
			AddRow("a-1", "alice", nil, "login", false, models.ReasonBadPIN, "10.0.0.1", 0.0, "", at.Add(-time.Minute)))

	got, err := repo.ListByUsername(context.Background(), "alice", 10)
	if err != nil {
		t.Fatalf("ListByUsername error: %v", err)
	}
	if len(got) != 2 || got[0].IdentityID != "id-1" || got[1].IdentityID != "" || got[1].FailureReason != models.ReasonBadPIN {
		t.Fatalf("unexpected rows: %+v %+v", got[0], got[1])
	}
}
