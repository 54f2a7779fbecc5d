// Package capability adapts the external acoustic model servers to the
// biometric capability interfaces. Each call stages the audio, posts a JSON
// request naming it and releases the artifact on return.
package capability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/audio"
	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/netx"
	"github.com/dmitrijs2005/voicemfa/internal/server/biometric"
	"github.com/dmitrijs2005/voicemfa/internal/server/staging"
)

// Endpoints are the model server URLs. Transcribe is optional.
type Endpoints struct {
	Enhance    string
	Spoof      string
	Embed      string
	Transcribe string
}

type Client struct {
	endpoints Endpoints
	stager    staging.Stager
	http      *http.Client
	timeout   time.Duration
	logger    logging.Logger
}

func NewClient(endpoints Endpoints, stager staging.Stager, timeout time.Duration, logger logging.Logger) (*Client, error) {
	if endpoints.Enhance == "" || endpoints.Spoof == "" || endpoints.Embed == "" {
		return nil, fmt.Errorf("%w: enhance, spoof and embed capability URLs are required", common.ErrConfig)
	}
	if stager == nil {
		return nil, fmt.Errorf("%w: staging backend is required", common.ErrConfig)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: capability timeout must be positive", common.ErrConfig)
	}
	return &Client{
		endpoints: endpoints,
		stager:    stager,
		http:      &http.Client{},
		timeout:   timeout,
		logger:    logger.With("module", "capability"),
	}, nil
}

// Capabilities returns the client as the gate's capability set. The
// transcriber is nil when its URL is unset.
func (c *Client) Capabilities() biometric.Capabilities {
	caps := biometric.Capabilities{
		Enhancer: enhanceClient{c},
		Spoof:    spoofClient{c},
		Embedder: embedClient{c},
	}
	if c.endpoints.Transcribe != "" {
		caps.Transcriber = transcribeClient{c}
	}
	return caps
}

type audioRequest struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate,omitempty"`
	WasClipped bool   `json:"was_clipped,omitempty"`
}

// call stages wav, posts the request and always releases the artifact.
// Any failure, including the timeout, is a processing error.
func (c *Client) call(ctx context.Context, op, url string, wav []byte, req audioRequest, out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		if err != nil {
			c.logger.Warn(ctx, "capability call failed", "op", op, "elapsed", time.Since(started), "error", err)
		}
	}()

	artifact, err := c.stager.Stage(ctx, wav)
	if err != nil {
		return fmt.Errorf("%w: %s: stage audio: %v", common.ErrProcessing, op, err)
	}
	defer func() {
		if rerr := artifact.Release(context.WithoutCancel(ctx)); rerr != nil {
			c.logger.Error(ctx, "staged audio not removed", "key", artifact.Key, "error", rerr)
		}
	}()

	req.Audio = artifact.Ref
	if err := netx.PostJSON(ctx, c.http, url, req, out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: timed out after %s", common.ErrProcessing, op, c.timeout)
		}
		return fmt.Errorf("%w: %s: %v", common.ErrProcessing, op, err)
	}
	return nil
}

type enhanceClient struct{ c *Client }

type signalResponse struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

func (e enhanceClient) Enhance(ctx context.Context, s audio.Signal) (audio.Signal, error) {
	var resp signalResponse
	req := audioRequest{SampleRate: s.SampleRate}
	if err := e.c.call(ctx, "enhance", e.c.endpoints.Enhance, audio.EncodeWAV(s), req, &resp); err != nil {
		return audio.Signal{}, err
	}
	if resp.SampleRate == 0 {
		resp.SampleRate = s.SampleRate
	}
	return audio.Signal{Samples: resp.Samples, SampleRate: resp.SampleRate}, nil
}

type spoofClient struct{ c *Client }

type spoofResponse struct {
	IsReal     bool    `json:"is_real"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

func (sc spoofClient) DetectSpoof(ctx context.Context, wav []byte, wasClipped bool) (biometric.SpoofVerdict, error) {
	var resp spoofResponse
	if err := sc.c.call(ctx, "spoof", sc.c.endpoints.Spoof, wav, audioRequest{WasClipped: wasClipped}, &resp); err != nil {
		return biometric.SpoofVerdict{}, err
	}
	return biometric.SpoofVerdict{IsReal: resp.IsReal, Confidence: resp.Confidence, Label: resp.Label}, nil
}

type embedClient struct{ c *Client }

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (ec embedClient) Embed(ctx context.Context, s audio.Signal) ([]float32, error) {
	var resp embedResponse
	req := audioRequest{SampleRate: s.SampleRate}
	if err := ec.c.call(ctx, "embed", ec.c.endpoints.Embed, audio.EncodeWAV(s), req, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

type transcribeClient struct{ c *Client }

type transcribeResponse struct {
	Text string `json:"text"`
}

func (tc transcribeClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var resp transcribeResponse
	if err := tc.c.call(ctx, "transcribe", tc.c.endpoints.Transcribe, wav, audioRequest{}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}
