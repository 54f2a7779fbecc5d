package common

import "errors"

// RejectionKind is the caller-visible subkind of a biometric rejection.
type RejectionKind string

const (
	// QualityIssue asks the user to adjust volume or environment and retry.
	QualityIssue RejectionKind = "quality_issue"
	// SpoofDetected means the sample looked synthetic or replayed.
	SpoofDetected RejectionKind = "spoof_detected"
	// VoiceMismatch means the voice did not match the stored voiceprint.
	VoiceMismatch RejectionKind = "voice_mismatch"
)

// ErrBiometricRejection is matched by every *BiometricRejection.
var ErrBiometricRejection = errors.New("voice verification failed")

// BiometricRejection is a security rejection from the biometric gate. Kind is
// part of the response contract; Reason is the audit-only detail and is not
// included in Error().
type BiometricRejection struct {
	Kind   RejectionKind
	Reason string
}

func (e *BiometricRejection) Error() string {
	return ErrBiometricRejection.Error()
}

// Is makes errors.Is(err, ErrBiometricRejection) hold.
func (e *BiometricRejection) Is(target error) bool {
	return target == ErrBiometricRejection
}

// NewRejection builds a BiometricRejection.
func NewRejection(kind RejectionKind, reason string) *BiometricRejection {
	return &BiometricRejection{Kind: kind, Reason: reason}
}

// RejectionKindOf extracts the rejection kind, if err is a biometric rejection.
func RejectionKindOf(err error) (RejectionKind, bool) {
	var r *BiometricRejection
	if errors.As(err, &r) {
		return r.Kind, true
	}
	return "", false
}
