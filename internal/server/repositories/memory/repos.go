package memory

import (
	"context"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/google/uuid"
)

type identityRepo struct{ c *conn }

func (r *identityRepo) Create(_ context.Context, identity *models.Identity) (*models.Identity, error) {
	err := r.c.do(func(t *tables) error {
		for _, v := range t.identities {
			if v.Username == identity.Username {
				return common.ErrorAlreadyExists
			}
		}
		identity.ID = uuid.NewString()
		if identity.CreatedAt.IsZero() {
			identity.CreatedAt = time.Now()
		}
		t.identities[identity.ID] = copyIdentity(identity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (r *identityRepo) GetByUsername(_ context.Context, username string) (*models.Identity, error) {
	var out *models.Identity
	err := r.c.do(func(t *tables) error {
		for _, v := range t.identities {
			if v.Username == username {
				out = copyIdentity(v)
				return nil
			}
		}
		return common.ErrorNotFound
	})
	return out, err
}

func (r *identityRepo) GetByID(_ context.Context, id string) (*models.Identity, error) {
	var out *models.Identity
	err := r.c.do(func(t *tables) error {
		v, ok := t.identities[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = copyIdentity(v)
		return nil
	})
	return out, err
}

func (r *identityRepo) RegisterFailure(_ context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		n      int
		locked *time.Time
	)
	err := r.c.do(func(t *tables) error {
		v, ok := t.identities[id]
		if !ok {
			return common.ErrorNotFound
		}
		v.FailedAttempts++
		if v.FailedAttempts >= maxAttempts {
			v.LockedUntil = copyTime(&lockUntil)
		}
		n, locked = v.FailedAttempts, copyTime(v.LockedUntil)
		return nil
	})
	return n, locked, err
}

func (r *identityRepo) ClearLock(_ context.Context, id string) error {
	return r.c.do(func(t *tables) error {
		v, ok := t.identities[id]
		if !ok {
			return common.ErrorNotFound
		}
		v.FailedAttempts, v.LockedUntil = 0, nil
		return nil
	})
}

func (r *identityRepo) RecordSuccess(_ context.Context, id string, at time.Time) error {
	return r.c.do(func(t *tables) error {
		v, ok := t.identities[id]
		if !ok {
			return common.ErrorNotFound
		}
		v.FailedAttempts, v.LockedUntil, v.LastLogin = 0, nil, copyTime(&at)
		return nil
	})
}

func (r *identityRepo) SetRole(_ context.Context, username string, role models.Role) error {
	return r.c.do(func(t *tables) error {
		for _, v := range t.identities {
			if v.Username == username {
				v.Role = role
				return nil
			}
		}
		return common.ErrorNotFound
	})
}

type enrollmentRepo struct{ c *conn }

func (r *enrollmentRepo) Create(_ context.Context, p *models.PendingEnrollment) error {
	return r.c.do(func(t *tables) error {
		if _, ok := t.enrollments[p.Username]; ok {
			return common.ErrorAlreadyExists
		}
		t.enrollments[p.Username] = copyEnrollment(p)
		return nil
	})
}

func (r *enrollmentRepo) Get(_ context.Context, username string) (*models.PendingEnrollment, error) {
	var out *models.PendingEnrollment
	err := r.c.do(func(t *tables) error {
		v, ok := t.enrollments[username]
		if !ok {
			return common.ErrorNotFound
		}
		out = copyEnrollment(v)
		return nil
	})
	return out, err
}

func (r *enrollmentRepo) SetSample(_ context.Context, username string, slot int, blob []byte) error {
	if slot < 0 || slot >= len(models.PendingEnrollment{}.Samples) {
		return common.Validationf("sample slot %d out of range", slot+1)
	}
	return r.c.do(func(t *tables) error {
		v, ok := t.enrollments[username]
		if !ok {
			return common.ErrorNotFound
		}
		v.Samples[slot] = copyBytes(blob)
		return nil
	})
}

func (r *enrollmentRepo) Delete(_ context.Context, username string) error {
	return r.c.do(func(t *tables) error {
		delete(t.enrollments, username)
		return nil
	})
}

func (r *enrollmentRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.c.do(func(t *tables) error {
		for k, v := range t.enrollments {
			if !v.ExpiresAt.After(now) {
				delete(t.enrollments, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

type challengeRepo struct{ c *conn }

func (r *challengeRepo) Create(_ context.Context, c *models.Challenge) (*models.Challenge, error) {
	err := r.c.do(func(t *tables) error {
		c.ID = uuid.NewString()
		stored := *c
		t.challenges = append(t.challenges, &stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *challengeRepo) DeleteUnused(_ context.Context, username string) (int64, error) {
	var n int64
	err := r.c.do(func(t *tables) error {
		kept := t.challenges[:0]
		for _, v := range t.challenges {
			if v.Username == username && !v.Used {
				n++
				continue
			}
			kept = append(kept, v)
		}
		t.challenges = kept
		return nil
	})
	return n, err
}

func (r *challengeRepo) LatestValid(_ context.Context, username string, now time.Time) (*models.Challenge, error) {
	var out *models.Challenge
	err := r.c.do(func(t *tables) error {
		for _, v := range t.challenges {
			if v.Username != username || !v.Valid(now) {
				continue
			}
			if out == nil || !v.CreatedAt.Before(out.CreatedAt) {
				c := *v
				out = &c
			}
		}
		if out == nil {
			return common.ErrorNotFound
		}
		return nil
	})
	return out, err
}

func (r *challengeRepo) Consume(_ context.Context, id string, now time.Time) error {
	return r.c.do(func(t *tables) error {
		for _, v := range t.challenges {
			if v.ID == id && v.Valid(now) {
				v.Used = true
				return nil
			}
		}
		return common.ErrorNotFound
	})
}

func (r *challengeRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.c.do(func(t *tables) error {
		kept := t.challenges[:0]
		for _, v := range t.challenges {
			if !v.ExpiresAt.After(now) {
				n++
				continue
			}
			kept = append(kept, v)
		}
		t.challenges = kept
		return nil
	})
	return n, err
}

type attemptRepo struct{ c *conn }

func (r *attemptRepo) Append(_ context.Context, a *models.LoginAttempt) error {
	return r.c.do(func(t *tables) error {
		a.ID = uuid.NewString()
		stored := *a
		t.attempts = append(t.attempts, &stored)
		return nil
	})
}

func (r *attemptRepo) ListByUsername(_ context.Context, username string, limit int) ([]*models.LoginAttempt, error) {
	var out []*models.LoginAttempt
	err := r.c.do(func(t *tables) error {
		for i := len(t.attempts) - 1; i >= 0; i-- {
			if t.attempts[i].Username == username {
				a := *t.attempts[i]
				out = append(out, &a)
			}
		}
		sortStable(out, func(a, b *models.LoginAttempt) bool { return a.CreatedAt.After(b.CreatedAt) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

type attendanceRepo struct{ c *conn }

func (r *attendanceRepo) Create(_ context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	err := r.c.do(func(t *tables) error {
		for _, v := range t.attendance {
			if v.IdentityID == rec.IdentityID && v.Open() && v.Date.Equal(rec.Date) {
				return common.ErrorAlreadyExists
			}
		}
		rec.ID = uuid.NewString()
		t.attendance = append(t.attendance, copyRecord(rec))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *attendanceRepo) OpenForDay(_ context.Context, identityID string, day time.Time) (*models.AttendanceRecord, error) {
	var out *models.AttendanceRecord
	err := r.c.do(func(t *tables) error {
		for _, v := range t.attendance {
			if v.IdentityID == identityID && v.Open() && v.Date.Equal(day) {
				out = copyRecord(v)
				return nil
			}
		}
		return common.ErrorNotFound
	})
	return out, err
}

func (r *attendanceRepo) LatestOpen(_ context.Context, identityID string) (*models.AttendanceRecord, error) {
	var out *models.AttendanceRecord
	err := r.c.do(func(t *tables) error {
		for _, v := range t.attendance {
			if v.IdentityID == identityID && v.Open() && (out == nil || v.ClockIn.After(out.ClockIn)) {
				out = copyRecord(v)
			}
		}
		if out == nil {
			return common.ErrorNotFound
		}
		return nil
	})
	return out, err
}

func (r *attendanceRepo) Close(_ context.Context, id string, clockOut time.Time, status models.AttendanceStatus, fine float64) error {
	return r.c.do(func(t *tables) error {
		for _, v := range t.attendance {
			if v.ID == id && v.Open() {
				v.ClockOut = copyTime(&clockOut)
				v.Status = status
				v.FineAmount = fine
				return nil
			}
		}
		return common.ErrorNotFound
	})
}

func (r *attendanceRepo) ListRange(_ context.Context, identityID string, from, to time.Time) ([]*models.AttendanceRecord, error) {
	var out []*models.AttendanceRecord
	err := r.c.do(func(t *tables) error {
		for _, v := range t.attendance {
			if v.IdentityID == identityID && !v.Date.Before(from) && !v.Date.After(to) {
				out = append(out, copyRecord(v))
			}
		}
		sortStable(out, func(a, b *models.AttendanceRecord) bool {
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			return a.ClockIn.Before(b.ClockIn)
		})
		return nil
	})
	return out, err
}

type taskRepo struct{ c *conn }

func (r *taskRepo) Create(_ context.Context, task *models.Task) (*models.Task, error) {
	err := r.c.do(func(t *tables) error {
		task.ID = uuid.NewString()
		t.tasks = append(t.tasks, copyTask(task))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepo) CountPending(_ context.Context, ownerID string) (int, error) {
	var n int
	err := r.c.do(func(t *tables) error {
		for _, v := range t.tasks {
			if v.OwnerID == ownerID && !v.Completed {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *taskRepo) Complete(_ context.Context, id, ownerID string, at time.Time) error {
	return r.c.do(func(t *tables) error {
		for _, v := range t.tasks {
			if v.ID == id && v.OwnerID == ownerID && !v.Completed {
				v.Completed = true
				v.CompletedAt = copyTime(&at)
				return nil
			}
		}
		return common.ErrorNotFound
	})
}

func (r *taskRepo) ListByOwner(_ context.Context, ownerID string, includeCompleted bool) ([]*models.Task, error) {
	var out []*models.Task
	err := r.c.do(func(t *tables) error {
		for _, v := range t.tasks {
			if v.OwnerID == ownerID && (includeCompleted || !v.Completed) {
				out = append(out, copyTask(v))
			}
		}
		sortStable(out, func(a, b *models.Task) bool { return a.AssignedAt.Before(b.AssignedAt) })
		return nil
	})
	return out, err
}
