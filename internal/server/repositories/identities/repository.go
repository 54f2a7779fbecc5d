package identities

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

type Repository interface {
	// Create inserts a finalized identity. A taken username returns
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByUsername(ctx context.Context, username string) (*models.Identity, error)
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	// RegisterFailure increments the failure counter and, once it reaches
	// maxAttempts, sets locked_until. It returns the new counter and lock.
	RegisterFailure(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error)
	// ClearLock resets the counter and lock without touching last_login.
	ClearLock(ctx context.Context, id string) error
	// RecordSuccess resets the counter and lock and stamps last_login.
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	SetRole(ctx context.Context, username string, role models.Role) error
}
