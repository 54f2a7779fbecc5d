package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/logging"
)

// limiterIdle is how long a source may stay quiet before its bucket is
// dropped.
const limiterIdle = 30 * time.Minute

// Sweeper forgets idle rate-limit state.
type Sweeper interface {
	Sweep(idle time.Duration) int
}

// PurgeStats counts what one janitor pass removed.
type PurgeStats struct {
	Challenges  int64
	Enrollments int64
	Sources     int
}

// Janitor periodically removes expired challenges and pending enrollments.
type Janitor struct {
	ledger     *ChallengeLedger
	enrollment *EnrollmentService
	sweeper    Sweeper
	interval   time.Duration
	logger     logging.Logger
}

// NewJanitor builds a janitor. sweeper may be nil.
func NewJanitor(ledger *ChallengeLedger, enrollment *EnrollmentService, sweeper Sweeper, interval time.Duration, logger logging.Logger) *Janitor {
	return &Janitor{
		ledger:     ledger,
		enrollment: enrollment,
		sweeper:    sweeper,
		interval:   interval,
		logger:     logger.With("module", "janitor"),
	}
}

// RunOnce performs a single purge pass.
func (j *Janitor) RunOnce(ctx context.Context) (PurgeStats, error) {
	var st PurgeStats
	var err error

	if st.Challenges, err = j.ledger.Purge(ctx); err != nil {
		return st, err
	}
	if st.Enrollments, err = j.enrollment.Purge(ctx); err != nil {
		return st, err
	}
	if j.sweeper != nil {
		st.Sources = j.sweeper.Sweep(limiterIdle)
	}
	if st.Challenges > 0 || st.Enrollments > 0 {
		j.logger.Info(ctx, "expired state purged", "challenges", st.Challenges, "enrollments", st.Enrollments)
	}
	return st, nil
}

// Run repeats RunOnce every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error(ctx, "purge failed", "error", err)
			}
		}
	}
}
