package biometric

import (
	"context"

	"github.com/dmitrijs2005/voicemfa/internal/audio"
	"github.com/dmitrijs2005/voicemfa/internal/common"
)

// PlaybackHeuristic scores loudspeaker replay from the spectrum: speakers
// roll off the lows and highs, and room noise flattens the spectrum. Each
// tripped check adds its weight; a score at or above FlagScore flags replay.
type PlaybackHeuristic struct {
	LowBandHz    [2]float64
	HighBandHz   [2]float64
	MinLowRatio  float64
	MinHighRatio float64
	MaxFlatness  float64

	LowWeight, HighWeight, FlatWeight float64
	FlagScore                         float64

	FrameSize int
}

func DefaultPlaybackHeuristic() PlaybackHeuristic {
	return PlaybackHeuristic{
		LowBandHz:    [2]float64{50, 250},
		HighBandHz:   [2]float64{4000, 8000},
		MinLowRatio:  0.005,
		MinHighRatio: 0.002,
		MaxFlatness:  0.45,
		LowWeight:    0.4,
		HighWeight:   0.3,
		FlatWeight:   0.3,
		FlagScore:    0.6,
		FrameSize:    512,
	}
}

// PlaybackReport carries the measured features and the resulting score.
type PlaybackReport struct {
	LowRatio  float64
	HighRatio float64
	Flatness  float64
	Score     float64
	Flagged   bool
}

func (h PlaybackHeuristic) Score(s audio.Signal) PlaybackReport {
	sp := audio.PowerSpectrum(s, h.FrameSize)
	r := PlaybackReport{
		LowRatio:  sp.BandRatio(h.LowBandHz[0], h.LowBandHz[1]),
		HighRatio: sp.BandRatio(h.HighBandHz[0], h.HighBandHz[1]),
		Flatness:  sp.Flatness(),
	}
	if r.LowRatio < h.MinLowRatio {
		r.Score += h.LowWeight
	}
	if r.HighRatio < h.MinHighRatio {
		r.Score += h.HighWeight
	}
	if r.Flatness > h.MaxFlatness {
		r.Score += h.FlatWeight
	}
	r.Flagged = r.Score >= h.FlagScore
	return r
}

// SpoofReport combines the classifier answer with the playback heuristic.
type SpoofReport struct {
	Classifier      SpoofVerdict
	ClassifierError bool
	Playback        PlaybackReport
	IsReal          bool
}

// CheckSpoof submits the resampled copy to the classifier and runs the
// playback heuristic on it. A classifier error counts as not real. When the
// quality screen saw clipping, a rejection is labelled QualityIssue instead
// of SpoofDetected.
func (g *Gate) CheckSpoof(ctx context.Context, s *Sample, p *Prepared) (SpoofReport, Verdict) {
	var rep SpoofReport

	verdict, err := g.caps.Spoof.DetectSpoof(ctx, audio.EncodeWAV(p.Resampled), s.Quality.Clipped)
	if err != nil {
		g.logger.Error(ctx, "spoof classifier failed, rejecting", "error", err)
		rep.ClassifierError = true
		verdict = SpoofVerdict{Label: "ERROR"}
	}
	rep.Classifier = verdict
	rep.Playback = g.policy.Playback.Score(p.Resampled)
	rep.IsReal = verdict.IsReal && !rep.Playback.Flagged

	if rep.IsReal {
		return rep, pass(StageSpoof)
	}

	reason := "classifier: " + verdict.Label
	if rep.Playback.Flagged {
		reason = "playback artifacts"
		if !verdict.IsReal {
			reason = "classifier: " + verdict.Label + "; playback artifacts"
		}
	}
	if s.Quality.Clipped {
		return rep, reject(StageSpoof, common.QualityIssue, "clipped; "+reason)
	}
	return rep, reject(StageSpoof, common.SpoofDetected, reason)
}
