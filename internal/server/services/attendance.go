package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/biometric"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/repomanager"
)

// ShiftPolicy fixes the end of the working day and the early-leave fine.
// All day boundaries are taken in Location.
type ShiftPolicy struct {
	EndHour     int
	Location    *time.Location
	FinePerHour float64
}

// Settle computes how a record closed at t ends, given pending tasks.
func (p ShiftPolicy) Settle(t time.Time, pending int) (models.AttendanceStatus, float64) {
	local := t.In(p.Location)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), p.EndHour, 0, 0, 0, p.Location)

	switch {
	case !local.Before(cutoff):
		return models.StatusCompletedOnTime, 0
	case pending == 0:
		return models.StatusLeftEarlyAuthorized, 0
	}
	hours := cutoff.Sub(local).Hours()
	return models.StatusLeftEarlyFined, math.Round(hours*p.FinePerHour*100) / 100
}

// Day is the calendar date of t in the shift timezone, as UTC midnight.
func (p ShiftPolicy) Day(t time.Time) time.Time {
	local := t.In(p.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// ClockOutRequest carries a fresh voice sample from an authenticated
// identity.
type ClockOutRequest struct {
	IdentityID string
	Audio      []byte
	Source     string
}

// ClockOutResult reports the closed record. Closed is false when there was
// no open record to close.
type ClockOutResult struct {
	Closed       bool
	Record       *models.AttendanceRecord
	PendingTasks int
	Similarity   float64
}

// AttendanceEngine tracks clock-in and clock-out and computes fines.
type AttendanceEngine struct {
	tx     dbx.Transactor
	repos  repomanager.RepositoryManager
	gate   *biometric.Gate
	policy ShiftPolicy
	audit  *auditor
	now    func() time.Time
	logger logging.Logger
}

func NewAttendanceEngine(tx dbx.Transactor, repos repomanager.RepositoryManager, gate *biometric.Gate, policy ShiftPolicy, logger logging.Logger) *AttendanceEngine {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	logger = logger.With("module", "attendance")
	return &AttendanceEngine{
		tx:     tx,
		repos:  repos,
		gate:   gate,
		policy: policy,
		audit:  newAuditor(tx, repos, logger),
		now:    time.Now,
		logger: logger,
	}
}

// ClockIn opens today's record for id unless one is already open. It runs
// on the caller's handle so it commits with the login. The bool reports
// whether a record was created.
func (e *AttendanceEngine) ClockIn(ctx context.Context, db dbx.DBTX, id *models.Identity, at time.Time) (*models.AttendanceRecord, bool, error) {
	repo := e.repos.Attendance(db)
	day := e.policy.Day(at)

	rec, err := repo.OpenForDay(ctx, id.ID, day)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, false, err
	}

	rec, err = repo.Create(ctx, &models.AttendanceRecord{
		IdentityID: id.ID,
		Username:   id.Username,
		Date:       day,
		ClockIn:    at,
		Status:     models.StatusWorking,
	})
	if errors.Is(err, common.ErrorAlreadyExists) {
		// a concurrent login opened it first
		rec, err = repo.OpenForDay(ctx, id.ID, day)
		return rec, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// ClockOut re-verifies the voice of an authenticated identity and closes its
// latest open record. Voice failures are audited but do not count toward
// the lockout.
func (e *AttendanceEngine) ClockOut(ctx context.Context, req ClockOutRequest) (*ClockOutResult, error) {
	if len(req.Audio) == 0 {
		return nil, common.Validationf("audio is required")
	}
	id, err := e.repos.Identities(e.tx.Conn()).GetByID(ctx, req.IdentityID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAuth
		}
		return nil, err
	}
	if !id.Active {
		return nil, common.ErrAuth
	}

	attempt := &models.LoginAttempt{
		Username:      id.Username,
		IdentityID:    id.ID,
		Operation:     models.OpClockOut,
		SourceAddress: req.Source,
	}

	res, err := e.gate.Verify(ctx, req.Audio, id.EncryptedVoiceprint)
	if err != nil {
		e.audit.failure(ctx, attempt, failureReason(err), req.Audio)
		return nil, err
	}

	out := &ClockOutResult{Similarity: res.Similarity}
	now := e.now()
	err = e.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := e.repos.Attendance(tx)
		rec, err := repo.LatestOpen(ctx, id.ID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if out.PendingTasks, err = e.repos.Tasks(tx).CountPending(ctx, id.ID); err != nil {
			return err
		}
		status, fine := e.policy.Settle(now, out.PendingTasks)
		if err := repo.Close(ctx, rec.ID, now, status, fine); err != nil {
			return err
		}
		rec.ClockOut, rec.Status, rec.FineAmount = &now, status, fine
		out.Record, out.Closed = rec, true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("clock out: %w", err)
	}

	attempt.Similarity = res.Similarity
	e.audit.success(ctx, attempt)
	if out.Closed {
		e.logger.Info(ctx, "clocked out", "username", id.Username, "status", string(out.Record.Status), "fine", out.Record.FineAmount)
	} else {
		e.logger.Info(ctx, "clock out without open record", "username", id.Username)
	}
	return out, nil
}

// TodayRecord returns the identity's record for today, preferring an open
// one. It returns nil without error when there is none.
func (e *AttendanceEngine) TodayRecord(ctx context.Context, identityID string) (*models.AttendanceRecord, error) {
	day := e.policy.Day(e.now())
	recs, err := e.repos.Attendance(e.tx.Conn()).ListRange(ctx, identityID, day, day)
	if err != nil {
		return nil, err
	}
	var out *models.AttendanceRecord
	for _, r := range recs {
		if out == nil || r.Open() || (!out.Open() && r.ClockIn.After(out.ClockIn)) {
			out = r
		}
	}
	return out, nil
}

// ListAttendance returns records dated within [from, to].
func (e *AttendanceEngine) ListAttendance(ctx context.Context, identityID string, from, to time.Time) ([]*models.AttendanceRecord, error) {
	from, to = e.policy.Day(from), e.policy.Day(to)
	if to.Before(from) {
		return nil, common.Validationf("range end precedes start")
	}
	return e.repos.Attendance(e.tx.Conn()).ListRange(ctx, identityID, from, to)
}

// ListAttendanceOf lists username's records for an actor allowed to read
// other identities' attendance.
func (e *AttendanceEngine) ListAttendanceOf(ctx context.Context, actor models.Role, username string, from, to time.Time) ([]*models.AttendanceRecord, error) {
	if !actor.CanViewAttendance() {
		return nil, common.ErrForbidden
	}
	id, err := e.repos.Identities(e.tx.Conn()).GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return e.ListAttendance(ctx, id.ID, from, to)
}
