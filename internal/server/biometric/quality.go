package biometric

import (
	"math"

	"github.com/dmitrijs2005/voicemfa/internal/audio"
	"github.com/dmitrijs2005/voicemfa/internal/common"
)

const (
	quietRMSDBFS = -35.0
	loudRMSDBFS  = -6.0
	// voiced frames whose zero-crossing rate spreads wider than this hint at
	// more than one talker.
	multiSpeakerZCRStdDev = 0.08
)

// QualityReport is what the quality screen measured. Only Silent blocks;
// the rest are hints.
type QualityReport struct {
	Peak         float64
	RMSDBFS      float64
	ClippedRatio float64
	Clipped      bool
	TooQuiet     bool
	TooLoud      bool
	MultiSpeaker bool
	Silent       bool
}

// Sample is a decoded upload that passed the size checks.
type Sample struct {
	Raw     []byte
	Signal  audio.Signal
	Quality QualityReport
}

// Screen decodes raw and runs the quality gate. Empty or oversized uploads
// are validation errors; unreadable or silent audio is a QualityIssue.
func (g *Gate) Screen(raw []byte) (*Sample, Verdict, error) {
	if len(raw) == 0 {
		return nil, Verdict{}, common.Validationf("audio is empty")
	}
	if int64(len(raw)) > g.policy.MaxAudioBytes {
		return nil, Verdict{}, common.Validationf("audio exceeds %d bytes", g.policy.MaxAudioBytes)
	}

	sig, err := audio.DecodeWAV(raw)
	if err != nil {
		return nil, reject(StageQuality, common.QualityIssue, err.Error()), nil
	}

	q := measure(sig, g.policy)
	s := &Sample{Raw: raw, Signal: sig, Quality: q}
	if q.Silent {
		return s, reject(StageQuality, common.QualityIssue, "silence"), nil
	}
	return s, pass(StageQuality), nil
}

func measure(sig audio.Signal, p Policy) QualityReport {
	q := QualityReport{
		Peak:         audio.Peak(sig.Samples),
		RMSDBFS:      audio.DBFS(audio.RMS(sig.Samples)),
		ClippedRatio: audio.ClippedRatio(sig.Samples, p.ClipLevel),
	}
	q.Silent = q.Peak < p.SilenceEpsilon
	q.Clipped = q.ClippedRatio >= p.ClippingRatio
	q.TooQuiet = q.RMSDBFS < quietRMSDBFS
	q.TooLoud = q.RMSDBFS > loudRMSDBFS
	q.MultiSpeaker = multiSpeakerHint(sig, q.Peak)
	return q
}

func multiSpeakerHint(sig audio.Signal, peak float64) bool {
	frame := sig.SampleRate / 50
	rms, zcr := audio.FrameStats(sig.Samples, frame)

	var voiced []float64
	for i := range rms {
		if rms[i] >= 0.1*peak {
			voiced = append(voiced, zcr[i])
		}
	}
	if len(voiced) < 10 {
		return false
	}

	var mean float64
	for _, v := range voiced {
		mean += v
	}
	mean /= float64(len(voiced))
	var variance float64
	for _, v := range voiced {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance/float64(len(voiced))) > multiSpeakerZCRStdDev
}
