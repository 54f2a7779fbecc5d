package challenges

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Challenge) (*models.Challenge, error)
	// DeleteUnused removes every unused challenge of username, expired or
	// superseded. Used rows stay as history until they expire.
	DeleteUnused(ctx context.Context, username string) (int64, error)
	// LatestValid returns the most recently created unused challenge of
	// username that has not expired at now.
	LatestValid(ctx context.Context, username string, now time.Time) (*models.Challenge, error)
	// Consume marks the challenge used. It fails with common.ErrorNotFound
	// unless exactly one unused, unexpired row was flipped.
	Consume(ctx context.Context, id string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
