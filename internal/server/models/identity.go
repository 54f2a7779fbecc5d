package models

import "time"

// Identity is an enrolled user. EncryptedVoiceprint is an opaque vault blob
// and never leaves the server.
type Identity struct {
	ID                  string
	Username            string
	PINHash             []byte
	Role                Role
	EncryptedVoiceprint []byte
	FailedAttempts      int
	LockedUntil         *time.Time
	LastLogin           *time.Time
	Active              bool
	CreatedAt           time.Time
}

// PendingEnrollment holds a half-finished enrollment. Samples are slotted
// encrypted embeddings; a nil slot has not been accepted yet.
type PendingEnrollment struct {
	Username  string
	PINHash   []byte
	Role      Role
	Samples   [3][]byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Complete reports whether every sample slot is filled.
func (p *PendingEnrollment) Complete() bool {
	for _, s := range p.Samples {
		if len(s) == 0 {
			return false
		}
	}
	return true
}

// Filled returns the number of accepted samples.
func (p *PendingEnrollment) Filled() int {
	n := 0
	for _, s := range p.Samples {
		if len(s) > 0 {
			n++
		}
	}
	return n
}
