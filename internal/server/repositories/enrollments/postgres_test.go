package enrollments

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	q := `(?s)^INSERT\s+INTO\s+pending_enrollments\s*\(username,\s*pin_hash,\s*role,\s*created_at,\s*expires_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*$`
	mock.ExpectExec(q).
		WithArgs("bob", []byte("h"), "employee", now, now.Add(30*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.PendingEnrollment{
		Username: "bob", PINHash: []byte("h"), Role: models.RoleEmployee, CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+pending_enrollments`).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.PendingEnrollment{Username: "bob", Role: models.RoleEmployee})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want ErrorAlreadyExists, got %v", err)
	}
}

func TestGet_WithPartialSlots(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)^SELECT\s+username,\s*pin_hash,\s*role,\s*sample_1,\s*sample_2,\s*sample_3,.*FROM\s+pending_enrollments\s+WHERE\s+username\s*=\s*\$1\s*$`).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"username", "pin_hash", "role", "sample_1", "sample_2", "sample_3", "created_at", "expires_at"}).
			AddRow("bob", []byte("h"), "admin", []byte("s1"), nil, []byte("s3"), now, now.Add(time.Hour)))

	got, err := repo.Get(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Role != models.RoleAdmin || got.Filled() != 2 || got.Complete() {
		t.Fatalf("unexpected enrollment: %+v", got)
	}
	if string(got.Samples[2]) != "s3" {
		t.Fatalf("slot 3 = %q", got.Samples[2])
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+pending_enrollments`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "ghost"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestSetSample(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`^UPDATE\s+pending_enrollments\s+SET\s+sample_2\s*=\s*\$2\s+WHERE\s+username\s*=\s*\$1$`).
		WithArgs("bob", []byte("blob")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetSample(context.Background(), "bob", 1, []byte("blob")); err != nil {
		t.Fatalf("SetSample error: %v", err)
	}
}

func TestSetSample_BadSlot(t *testing.T) {
	repo, _, db := newRepoWithMock(t)
	defer db.Close()

	for _, slot := range []int{-1, 3} {
		if err := repo.SetSample(context.Background(), "bob", slot, nil); !errors.Is(err, common.ErrValidation) {
			t.Fatalf("slot %d: want validation error, got %v", slot, err)
		}
	}
}

func TestSetSample_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+pending_enrollments`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetSample(context.Background(), "ghost", 0, []byte("b")); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`^DELETE\s+FROM\s+pending_enrollments\s+WHERE\s+expires_at\s*<=\s*\$1$`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background(), now)
	if err != nil || n != 4 {
		t.Fatalf("DeleteExpired = %d, %v", n, err)
	}
}

func TestDelete_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+pending_enrollments`).WillReturnError(errors.New("db down"))

	err := repo.Delete(context.Background(), "bob")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
