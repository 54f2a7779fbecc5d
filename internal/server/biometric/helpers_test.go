package biometric

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dmitrijs2005/voicemfa/internal/audio"
	"github.com/dmitrijs2005/voicemfa/internal/cryptox"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/stretchr/testify/require"
)

// voiceLike builds a harmonic signal with a 150 Hz fundamental, which passes
// the quality screen and the playback heuristic.
func voiceLike(rate int, seconds float64) audio.Signal {
	n := int(float64(rate) * seconds)
	out := make([]float32, n)
	for i := range out {
		var v float64
		for k := 1; k <= 40; k++ {
			f := 150.0 * float64(k)
			if f >= float64(rate)/2 {
				break
			}
			v += math.Sin(2*math.Pi*f*float64(i)/float64(rate)) / float64(k)
		}
		out[i] = float32(v)
	}
	return audio.NormalizePeak(audio.Signal{Samples: out, SampleRate: rate}, -6)
}

func tone(freq float64, rate int, seconds float64, amp float32) audio.Signal {
	n := int(float64(rate) * seconds)
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return audio.Signal{Samples: out, SampleRate: rate}
}

type fakeSpoof struct {
	verdict SpoofVerdict
	err     error
	calls   int
	clipped bool
}

func (f *fakeSpoof) DetectSpoof(_ context.Context, wav []byte, wasClipped bool) (SpoofVerdict, error) {
	f.calls++
	f.clipped = wasClipped
	if _, err := audio.DecodeWAV(wav); err != nil {
		return SpoofVerdict{}, err
	}
	return f.verdict, f.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, s audio.Signal) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(s.Samples) == 0 {
		return nil, errors.New("empty input")
	}
	return append([]float32(nil), f.vec...), nil
}

// fakeEnhancer passes the signal through, scaled by gain when set.
type fakeEnhancer struct {
	gain  float32
	err   error
	calls int
}

func (f *fakeEnhancer) Enhance(_ context.Context, s audio.Signal) (audio.Signal, error) {
	f.calls++
	if f.err != nil {
		return audio.Signal{}, f.err
	}
	if f.gain == 0 {
		return s, nil
	}
	out := audio.Signal{Samples: make([]float32, len(s.Samples)), SampleRate: s.SampleRate}
	for i, v := range s.Samples {
		out.Samples[i] = v * f.gain
	}
	return out, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte) (string, error) {
	return f.text, f.err
}

func genuine() *fakeSpoof {
	return &fakeSpoof{verdict: SpoofVerdict{IsReal: true, Confidence: 0.98, Label: "REAL"}}
}

func newTestVault(t *testing.T) *cryptox.Vault {
	t.Helper()
	v, err := cryptox.NewVault(make([]byte, cryptox.KeySize))
	require.NoError(t, err)
	return v
}

func newTestGate(t *testing.T, caps Capabilities) *Gate {
	t.Helper()
	if caps.Enhancer == nil {
		caps.Enhancer = &fakeEnhancer{}
	}
	g, err := NewGate(caps, newTestVault(t), DefaultPolicy(), logging.Nop{})
	require.NoError(t, err)
	return g
}
