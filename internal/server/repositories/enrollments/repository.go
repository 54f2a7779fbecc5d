package enrollments

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

type Repository interface {
	// Create starts a pending enrollment. An existing row for the username
	// returns common.ErrorAlreadyExists.
	Create(ctx context.Context, p *models.PendingEnrollment) error
	Get(ctx context.Context, username string) (*models.PendingEnrollment, error)
	// SetSample stores the encrypted embedding for slot 0, 1 or 2.
	SetSample(ctx context.Context, username string, slot int, blob []byte) error
	Delete(ctx context.Context, username string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
