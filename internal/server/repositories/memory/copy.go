package memory

import (
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func copyIdentity(i *models.Identity) *models.Identity {
	c := *i
	c.PINHash = copyBytes(i.PINHash)
	c.EncryptedVoiceprint = copyBytes(i.EncryptedVoiceprint)
	c.LockedUntil = copyTime(i.LockedUntil)
	c.LastLogin = copyTime(i.LastLogin)
	return &c
}

func copyEnrollment(p *models.PendingEnrollment) *models.PendingEnrollment {
	c := *p
	c.PINHash = copyBytes(p.PINHash)
	for i := range p.Samples {
		c.Samples[i] = copyBytes(p.Samples[i])
	}
	return &c
}

func copyRecord(r *models.AttendanceRecord) *models.AttendanceRecord {
	c := *r
	c.ClockOut = copyTime(r.ClockOut)
	return &c
}

func copyTask(t *models.Task) *models.Task {
	c := *t
	c.CompletedAt = copyTime(t.CompletedAt)
	return &c
}
