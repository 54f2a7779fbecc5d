package biometric

// Policy holds the per-process gate thresholds. It is fixed for the life of
// a Gate.
type Policy struct {
	// SilenceEpsilon is the peak amplitude below which a sample is silence.
	SilenceEpsilon float64
	// ClipLevel is the magnitude at or above which a sample counts as
	// clipped; ClippingRatio is the clipped fraction that flags the upload.
	ClipLevel     float64
	ClippingRatio float64

	TargetSampleRate int
	TargetPeakDBFS   float64

	// Threshold is the minimum cosine similarity for a match.
	Threshold float64

	MaxAudioBytes int64

	Playback PlaybackHeuristic
}

func DefaultPolicy() Policy {
	return Policy{
		SilenceEpsilon:   0.01,
		ClipLevel:        0.999,
		ClippingRatio:    0.01,
		TargetSampleRate: 16000,
		TargetPeakDBFS:   -3,
		Threshold:        0.75,
		MaxAudioBytes:    10 << 20,
		Playback:         DefaultPlaybackHeuristic(),
	}
}
