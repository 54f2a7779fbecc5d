package biometric

import "github.com/dmitrijs2005/voicemfa/internal/common"

// Stage names a gate in pipeline order.
type Stage uint8

const (
	StageQuality Stage = iota + 1
	StagePrepare
	StageSpoof
	StageEmbed
	StageScore
)

func (s Stage) String() string {
	switch s {
	case StageQuality:
		return "quality"
	case StagePrepare:
		return "prepare"
	case StageSpoof:
		return "spoof"
	case StageEmbed:
		return "embed"
	case StageScore:
		return "score"
	}
	return "unknown"
}

// Verdict is the tagged outcome of a stage. A failed verdict carries the
// rejection kind shown to the caller and a reason kept for the audit log.
type Verdict struct {
	Stage  Stage
	Passed bool
	Kind   common.RejectionKind
	Reason string
}

func pass(stage Stage) Verdict {
	return Verdict{Stage: stage, Passed: true}
}

func reject(stage Stage, kind common.RejectionKind, reason string) Verdict {
	return Verdict{Stage: stage, Kind: kind, Reason: reason}
}

// Err returns nil for a passing verdict and a *common.BiometricRejection
// otherwise.
func (v Verdict) Err() error {
	if v.Passed {
		return nil
	}
	return common.NewRejection(v.Kind, v.Reason)
}
