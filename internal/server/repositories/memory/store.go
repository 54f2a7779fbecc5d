// Package memory is an in-process implementation of every repository and of
// dbx.Transactor. It backs the "memory" DSN and the service tests.
//
// A single mutex serialises all access. WithTx holds it for the whole
// transaction and restores a snapshot on error or panic; repositories bound
// to the transactional handle skip locking. Calling a repository bound to
// Conn() from inside WithTx therefore deadlocks, as does nesting WithTx.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/attendance"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/challenges"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/enrollments"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/identities"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/loginattempts"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/tasks"
)

var errNoSQL = errors.New("memory store does not execute SQL")

type tables struct {
	identities  map[string]*models.Identity
	enrollments map[string]*models.PendingEnrollment
	challenges  []*models.Challenge
	attempts    []*models.LoginAttempt
	attendance  []*models.AttendanceRecord
	tasks       []*models.Task
}

func newTables() *tables {
	return &tables{
		identities:  map[string]*models.Identity{},
		enrollments: map[string]*models.PendingEnrollment{},
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.identities {
		c.identities[k] = copyIdentity(v)
	}
	for k, v := range t.enrollments {
		c.enrollments[k] = copyEnrollment(v)
	}
	for _, v := range t.challenges {
		ch := *v
		c.challenges = append(c.challenges, &ch)
	}
	for _, v := range t.attempts {
		a := *v
		c.attempts = append(c.attempts, &a)
	}
	for _, v := range t.attendance {
		c.attendance = append(c.attendance, copyRecord(v))
	}
	for _, v := range t.tasks {
		c.tasks = append(c.tasks, copyTask(v))
	}
	return c
}

// Store holds all tables. The zero value is not usable; call New.
type Store struct {
	mu sync.Mutex
	t  *tables
}

func New() *Store {
	return &Store{t: newTables()}
}

// conn is the DBTX handed to repositories. It carries no SQL capability,
// only whether the store lock is already held by an enclosing WithTx.
type conn struct {
	s    *Store
	inTx bool
}

func (c *conn) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (c *conn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

// QueryRowContext always returns nil; nothing in this package issues SQL.
func (c *conn) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func (c *conn) do(fn func(t *tables) error) error {
	if !c.inTx {
		c.s.mu.Lock()
		defer c.s.mu.Unlock()
	}
	return fn(c.s.t)
}

func (s *Store) bind(db dbx.DBTX) *conn {
	if c, ok := db.(*conn); ok && c.s == s {
		return c
	}
	return &conn{s: s}
}

func (s *Store) Conn() dbx.DBTX { return &conn{s: s} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.t.clone()
	defer func() {
		if p := recover(); p != nil {
			s.t = snapshot
			panic(p)
		}
		if err != nil {
			s.t = snapshot
		}
	}()

	return fn(ctx, &conn{s: s, inTx: true})
}

// RunMigrations is a no-op; the tables exist from New.
func (s *Store) RunMigrations(context.Context, *sql.DB) error { return nil }

func (s *Store) Identities(db dbx.DBTX) identities.Repository {
	return &identityRepo{c: s.bind(db)}
}

func (s *Store) Enrollments(db dbx.DBTX) enrollments.Repository {
	return &enrollmentRepo{c: s.bind(db)}
}

func (s *Store) Challenges(db dbx.DBTX) challenges.Repository {
	return &challengeRepo{c: s.bind(db)}
}

func (s *Store) LoginAttempts(db dbx.DBTX) loginattempts.Repository {
	return &attemptRepo{c: s.bind(db)}
}

func (s *Store) Attendance(db dbx.DBTX) attendance.Repository {
	return &attendanceRepo{c: s.bind(db)}
}

func (s *Store) Tasks(db dbx.DBTX) tasks.Repository {
	return &taskRepo{c: s.bind(db)}
}

func sortStable[T any](s []T, less func(a, b T) bool) {
	sort.SliceStable(s, func(i, j int) bool { return less(s[i], s[j]) })
}
