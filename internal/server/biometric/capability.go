// Package biometric runs uploaded audio through the ordered verification
// gates: quality screen, preparation and enhancement, anti-spoof, embedding
// extraction and similarity scoring.
//
// The acoustic models live behind the capability interfaces below. Each
// stage reports a Verdict; expected rejections travel as values and only
// capability faults become errors.
package biometric

import (
	"context"

	"github.com/dmitrijs2005/voicemfa/internal/audio"
)

// Enhancer denoises and isolates the voice in a normalized mono signal.
type Enhancer interface {
	Enhance(ctx context.Context, s audio.Signal) (audio.Signal, error)
}

// SpoofVerdict is the anti-spoof classifier's answer.
type SpoofVerdict struct {
	IsReal     bool
	Confidence float64
	Label      string
}

// SpoofDetector classifies WAV bytes as genuine or synthetic/replayed.
// wasClipped tells the classifier the quality screen saw clipping.
type SpoofDetector interface {
	DetectSpoof(ctx context.Context, wav []byte, wasClipped bool) (SpoofVerdict, error)
}

// Embedder maps an enhanced signal to a fixed-length speaker vector.
type Embedder interface {
	Embed(ctx context.Context, s audio.Signal) ([]float32, error)
}

// Transcriber converts WAV bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Capabilities groups the injected model clients. Only Transcriber is
// optional; without it there is no transcript.
type Capabilities struct {
	Enhancer    Enhancer
	Spoof       SpoofDetector
	Embedder    Embedder
	Transcriber Transcriber
}
