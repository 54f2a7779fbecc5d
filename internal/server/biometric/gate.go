package biometric

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/voicemfa/internal/audio"
	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/cryptox"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
)

// Gate composes the stages. It holds no per-request state and is safe for
// concurrent use when its capabilities are.
type Gate struct {
	caps   Capabilities
	vault  *cryptox.Vault
	policy Policy
	logger logging.Logger
}

func NewGate(caps Capabilities, vault *cryptox.Vault, policy Policy, logger logging.Logger) (*Gate, error) {
	if caps.Enhancer == nil || caps.Spoof == nil || caps.Embedder == nil {
		return nil, fmt.Errorf("%w: enhancement, spoof and embedding capabilities are required", common.ErrConfig)
	}
	if vault == nil {
		return nil, fmt.Errorf("%w: vault is required", common.ErrConfig)
	}
	return &Gate{caps: caps, vault: vault, policy: policy, logger: logger.With("module", "biometric")}, nil
}

// Policy returns the thresholds the gate was built with.
func (g *Gate) Policy() Policy { return g.policy }

// Prepared holds the normalized signal at the target rate and its enhanced
// version.
type Prepared struct {
	Resampled audio.Signal
	Enhanced  audio.Signal
}

// Prepare resamples, normalizes to the target peak and enhances. Any
// failure is a processing error.
func (g *Gate) Prepare(ctx context.Context, s *Sample) (*Prepared, error) {
	resampled := audio.NormalizePeak(audio.Resample(s.Signal, g.policy.TargetSampleRate), g.policy.TargetPeakDBFS)
	if g.caps.Enhancer == nil {
		return nil, processing("enhance", errors.New("capability unavailable"))
	}
	enhanced, err := g.caps.Enhancer.Enhance(ctx, resampled)
	if err != nil {
		return nil, processing("enhance", err)
	}
	if len(enhanced.Samples) == 0 {
		return nil, processing("enhance", errors.New("empty signal"))
	}
	return &Prepared{Resampled: resampled, Enhanced: enhanced}, nil
}

// Extract asks the embedder for the speaker vector of the enhanced signal.
func (g *Gate) Extract(ctx context.Context, p *Prepared) ([]float32, error) {
	vec, err := g.caps.Embedder.Embed(ctx, p.Enhanced)
	if err != nil {
		return nil, processing("embed", err)
	}
	if len(vec) == 0 {
		return nil, processing("embed", errors.New("empty embedding"))
	}
	return vec, nil
}

// Score decrypts reference and returns its cosine similarity with probe.
// An undecryptable reference scores 0.
func (g *Gate) Score(ctx context.Context, probe []float32, reference []byte) float64 {
	if len(reference) == 0 {
		return 0
	}
	ref, err := g.vault.Decrypt(reference)
	if err != nil {
		g.logger.Error(ctx, "stored voiceprint failed integrity check", "error", err)
		return 0
	}
	return Cosine(probe, ref)
}

func processing(stage string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrProcessing, stage, err)
}

// Result describes a pass through the pipeline for audit. Fields after the
// failing stage are zero.
type Result struct {
	Verdict    Verdict
	Quality    QualityReport
	Spoof      SpoofReport
	Embedding  []float32
	Similarity float64
	Transcript string
	// TranscriptErr is set when transcription was attempted and failed.
	TranscriptErr error
}

// Embed runs stages 1 to 4 on one enrollment sample. A rejection is
// returned as a *common.BiometricRejection alongside the partial Result.
func (g *Gate) Embed(ctx context.Context, raw []byte) (*Result, error) {
	res := &Result{}

	s, v, err := g.Screen(raw)
	if err != nil {
		return res, err
	}
	if s != nil {
		res.Quality = s.Quality
	}
	if res.Verdict = v; !v.Passed {
		return res, g.rejected(ctx, v)
	}

	p, err := g.Prepare(ctx, s)
	if err != nil {
		return res, err
	}

	rep, v := g.CheckSpoof(ctx, s, p)
	res.Spoof = rep
	if res.Verdict = v; !v.Passed {
		return res, g.rejected(ctx, v)
	}

	if res.Embedding, err = g.Extract(ctx, p); err != nil {
		return res, err
	}
	res.Verdict = pass(StageEmbed)

	if g.caps.Transcriber != nil {
		res.Transcript, res.TranscriptErr = g.caps.Transcriber.Transcribe(ctx, audio.EncodeWAV(p.Resampled))
		if res.TranscriptErr != nil {
			res.TranscriptErr = processing("transcribe", res.TranscriptErr)
		}
	}
	return res, nil
}

// Verify runs the whole pipeline against the encrypted reference voiceprint
// and accepts when the similarity reaches the threshold.
func (g *Gate) Verify(ctx context.Context, raw []byte, reference []byte) (*Result, error) {
	res, err := g.Embed(ctx, raw)
	if err != nil {
		return res, err
	}

	res.Similarity = g.Score(ctx, res.Embedding, reference)
	if res.Similarity < g.policy.Threshold {
		res.Verdict = reject(StageScore, common.VoiceMismatch, fmt.Sprintf("similarity %.4f below %.4f", res.Similarity, g.policy.Threshold))
		return res, g.rejected(ctx, res.Verdict)
	}
	res.Verdict = pass(StageScore)
	return res, nil
}

func (g *Gate) rejected(ctx context.Context, v Verdict) error {
	g.logger.Warn(ctx, "biometric rejection", "stage", v.Stage.String(), "kind", string(v.Kind), "reason", v.Reason)
	return v.Err()
}
