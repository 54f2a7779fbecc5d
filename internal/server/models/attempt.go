package models

import "time"

// Failure reasons recorded on LoginAttempt rows. They are audit-only and are
// never returned to callers.
const (
	ReasonUnknownUser  = "unknown_user"
	ReasonBadPIN       = "bad_pin"
	ReasonLocked       = "locked"
	ReasonChallenge    = "challenge"
	ReasonPhrase       = "phrase_mismatch"
	ReasonNoVoiceprint = "no_voiceprint"
	ReasonProcessing   = "processing_error"
	ReasonInactive     = "inactive"
	ReasonRateLimited  = "rate_limited"
)

// Operations recorded on LoginAttempt rows.
const (
	OpChallenge = "challenge"
	OpLogin     = "login"
	OpClockOut  = "clock_out"
	OpEnroll    = "enroll"
)

// LoginAttempt is an append-only audit row. IdentityID is empty for unknown
// usernames.
type LoginAttempt struct {
	ID            string
	Username      string
	IdentityID    string
	Operation     string
	Success       bool
	FailureReason string
	SourceAddress string
	Similarity    float64
	Transcript    string
	CreatedAt     time.Time
}
