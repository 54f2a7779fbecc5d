// Package common defines shared constants and the error taxonomy used across
// the voice MFA server. Callers should use errors.Is / errors.As to match
// these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// ErrValidation marks user-correctable input problems (malformed
	// username, PIN policy, audio size).
	ErrValidation = errors.New("validation error")
	// ErrUsernameTaken is reported at enrollment; it wraps ErrValidation.
	ErrUsernameTaken = fmt.Errorf("%w: username unavailable", ErrValidation)

	// ErrCredentials is returned, unwrapped, for an unknown username, a wrong
	// PIN and a locked account alike.
	ErrCredentials = errors.New("invalid username or PIN")

	// ErrChallenge covers missing, expired, already-used and (in strict mode)
	// mismatched challenge phrases.
	ErrChallenge = errors.New("challenge invalid or expired")

	// ErrProcessing means a capability call failed or timed out. It is not a
	// security judgment.
	ErrProcessing = errors.New("processing failed, retry")

	// ErrIntegrity is returned when stored ciphertext fails authentication.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrAuth covers bad session tokens; ErrTokenExpired wraps it.
	ErrAuth         = errors.New("unauthorized")
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrAuth)

	// ErrForbidden is returned when a role lacks the capability for an action.
	ErrForbidden = errors.New("forbidden")

	// ErrConfig is fatal at startup.
	ErrConfig = errors.New("configuration error")

	// ErrRateLimited is keyed by source address, never by account.
	ErrRateLimited = errors.New("too many requests")
)

// Validationf wraps ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
