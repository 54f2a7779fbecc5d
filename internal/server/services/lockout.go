package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/repomanager"
)

// ErrLocked is the guard's internal verdict for a locked identity. Callers
// never see it; it is reported as common.ErrCredentials.
var ErrLocked = errors.New("account locked")

// LockoutGuard is the per-identity failure counter and lock.
type LockoutGuard struct {
	repos       repomanager.RepositoryManager
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
	logger      logging.Logger
}

func NewLockoutGuard(repos repomanager.RepositoryManager, maxAttempts int, duration time.Duration, logger logging.Logger) *LockoutGuard {
	return &LockoutGuard{
		repos:       repos,
		maxAttempts: maxAttempts,
		duration:    duration,
		now:         time.Now,
		logger:      logger.With("module", "lockout"),
	}
}

// Check returns ErrLocked while the lock holds. A lapsed lock is cleared
// and id's counters reset before the caller goes on to the PIN.
func (g *LockoutGuard) Check(ctx context.Context, db dbx.DBTX, id *models.Identity) error {
	if id.LockedUntil == nil {
		return nil
	}
	if g.now().Before(*id.LockedUntil) {
		return ErrLocked
	}
	if err := g.repos.Identities(db).ClearLock(ctx, id.ID); err != nil {
		return err
	}
	id.FailedAttempts, id.LockedUntil = 0, nil
	return nil
}

// RecordFailure counts one failure and reports whether it locked the
// identity.
func (g *LockoutGuard) RecordFailure(ctx context.Context, db dbx.DBTX, id *models.Identity) (bool, error) {
	n, until, err := g.repos.Identities(db).RegisterFailure(ctx, id.ID, g.maxAttempts, g.now().Add(g.duration))
	if err != nil {
		return false, err
	}
	id.FailedAttempts, id.LockedUntil = n, until
	if until != nil {
		g.logger.Warn(ctx, "identity locked", "username", id.Username, "failed_attempts", n, "until", *until)
		return true, nil
	}
	return false, nil
}

// RecordSuccess resets the counter and stamps last_login.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, db dbx.DBTX, id *models.Identity) error {
	now := g.now()
	if err := g.repos.Identities(db).RecordSuccess(ctx, id.ID, now); err != nil {
		return err
	}
	id.FailedAttempts, id.LockedUntil, id.LastLogin = 0, nil, &now
	return nil
}
