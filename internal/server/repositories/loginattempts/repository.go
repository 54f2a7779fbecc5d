package loginattempts

import (
	"context"

	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

// Repository is append-only; rows are never updated.
type Repository interface {
	Append(ctx context.Context, a *models.LoginAttempt) error
	ListByUsername(ctx context.Context, username string, limit int) ([]*models.LoginAttempt, error)
}
