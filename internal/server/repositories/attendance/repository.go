package attendance

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

type Repository interface {
	// Create inserts rec. It returns common.ErrorAlreadyExists when
	// rec's day already has an open record.
	Create(ctx context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, error)
	// OpenForDay returns the open record of identityID dated day.
	OpenForDay(ctx context.Context, identityID string, day time.Time) (*models.AttendanceRecord, error)
	// LatestOpen returns the most recent open record of identityID.
	LatestOpen(ctx context.Context, identityID string) (*models.AttendanceRecord, error)
	// Close sets clock_out, status and fine on a still-open record.
	Close(ctx context.Context, id string, clockOut time.Time, status models.AttendanceStatus, fine float64) error
	// ListRange returns records dated within [from, to], oldest first.
	ListRange(ctx context.Context, identityID string, from, to time.Time) ([]*models.AttendanceRecord, error)
}
