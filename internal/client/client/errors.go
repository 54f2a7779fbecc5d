package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrChallenge    = errors.New("challenge invalid or expired, request a new one")
	ErrRateLimited  = errors.New("too many requests, slow down")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// VoiceRejectedError reports a biometric rejection and its kind
// ("quality_issue", "spoof_detected" or "voice_mismatch").
type VoiceRejectedError struct {
	Kind string
}

func (e *VoiceRejectedError) Error() string {
	return "voice verification failed: " + e.Kind
}
