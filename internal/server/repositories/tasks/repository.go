package tasks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	CountPending(ctx context.Context, ownerID string) (int, error)
	// Complete marks an incomplete task of ownerID done.
	Complete(ctx context.Context, id, ownerID string, at time.Time) error
	ListByOwner(ctx context.Context, ownerID string, includeCompleted bool) ([]*models.Task, error)
}
