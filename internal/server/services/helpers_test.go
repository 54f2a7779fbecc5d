package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/audio"
	"github.com/dmitrijs2005/voicemfa/internal/cryptox"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/auth"
	"github.com/dmitrijs2005/voicemfa/internal/server/biometric"
	"github.com/dmitrijs2005/voicemfa/internal/server/credentials"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/memory"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-session-signing-key-0123456789abcdef"

var (
	aliceVoice = []float32{0.8, 0.1, 0.4, 0.2, 0.3}
	otherVoice = []float32{-0.2, 0.9, -0.1, 0.1, -0.4}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubSpoof struct {
	mu      sync.Mutex
	verdict biometric.SpoofVerdict
	err     error
}

func (s *stubSpoof) DetectSpoof(context.Context, []byte, bool) (biometric.SpoofVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdict, s.err
}

func (s *stubSpoof) set(v biometric.SpoofVerdict, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdict, s.err = v, err
}

type passEnhancer struct{}

func (passEnhancer) Enhance(_ context.Context, s audio.Signal) (audio.Signal, error) {
	return s, nil
}

type stubEmbedder struct {
	mu  sync.Mutex
	vec []float32
	err error
}

func (e *stubEmbedder) Embed(context.Context, audio.Signal) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return append([]float32(nil), e.vec...), nil
}

func (e *stubEmbedder) set(vec []float32, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vec, e.err = vec, err
}

type stubTranscriber struct {
	mu   sync.Mutex
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(context.Context, []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.err
}

func (s *stubTranscriber) set(text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text, s.err = text, err
}

// voiceWAV is a harmonic 150 Hz signal that clears the quality screen and
// the playback heuristic.
func voiceWAV() []byte {
	const rate = 16000
	out := make([]float32, rate)
	for i := range out {
		var v float64
		for k := 1; k <= 40; k++ {
			v += math.Sin(2*math.Pi*150*float64(k)*float64(i)/rate) / float64(k)
		}
		out[i] = float32(v)
	}
	return audio.EncodeWAV(audio.NormalizePeak(audio.Signal{Samples: out, SampleRate: rate}, -6))
}

func silentWAV() []byte {
	return audio.EncodeWAV(audio.Signal{Samples: make([]float32, 16000), SampleRate: 16000})
}

type harness struct {
	store  *memory.Store
	clock  *fakeClock
	spoof  *stubSpoof
	embed  *stubEmbedder
	asr    *stubTranscriber
	vault  *cryptox.Vault
	creds  *credentials.Store
	issuer *auth.Issuer

	ledger     *ChallengeLedger
	guard      *LockoutGuard
	attendance *AttendanceEngine
	auth       *AuthService
	enroll     *EnrollmentService
	tasks      *TaskService
	janitor    *Janitor
}

type harnessOption func(*ChallengePolicy)

func strictPhrases(p *ChallengePolicy) { p.Strict = true }

// shiftZone is UTC+2, so the 17:00 cutoff is 15:00 UTC.
var shiftZone = time.FixedZone("UTC+2", 2*60*60)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		store: memory.New(),
		clock: &fakeClock{t: time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)},
		spoof: &stubSpoof{verdict: biometric.SpoofVerdict{IsReal: true, Confidence: 0.99, Label: "REAL"}},
		embed: &stubEmbedder{vec: aliceVoice},
		asr:   &stubTranscriber{},
	}
	var err error

	h.vault, err = cryptox.NewVault(make([]byte, cryptox.KeySize))
	require.NoError(t, err)
	h.creds, err = credentials.NewStore(credentials.MinCost)
	require.NoError(t, err)
	h.issuer, err = auth.NewIssuer([]byte(testSecret), time.Hour)
	require.NoError(t, err)

	gate, err := biometric.NewGate(biometric.Capabilities{
		Enhancer:    passEnhancer{},
		Spoof:       h.spoof,
		Embedder:    h.embed,
		Transcriber: h.asr,
	}, h.vault, biometric.DefaultPolicy(), logging.Nop{})
	require.NoError(t, err)

	policy := ChallengePolicy{TTL: 5 * time.Minute, AllowedMisses: 2}
	for _, o := range opts {
		o(&policy)
	}

	log := logging.Nop{}
	h.ledger = NewChallengeLedger(h.store, h.store, policy, log)
	h.ledger.now = h.clock.Now
	h.guard = NewLockoutGuard(h.store, 5, 15*time.Minute, log)
	h.guard.now = h.clock.Now
	h.attendance = NewAttendanceEngine(h.store, h.store, gate, ShiftPolicy{EndHour: 17, Location: shiftZone, FinePerHour: 50}, log)
	h.attendance.now = h.clock.Now
	h.attendance.audit.now = h.clock.Now
	h.auth = NewAuthService(AuthDeps{
		Tx:         h.store,
		Repos:      h.store,
		Creds:      h.creds,
		Guard:      h.guard,
		Ledger:     h.ledger,
		Gate:       gate,
		Issuer:     h.issuer,
		Attendance: h.attendance,
		Logger:     log,
	})
	h.auth.now = h.clock.Now
	h.auth.audit.now = h.clock.Now
	h.enroll = NewEnrollmentService(h.store, h.store, h.creds, gate, h.vault, nil, 30*time.Minute, log)
	h.enroll.now = h.clock.Now
	h.tasks = NewTaskService(h.store, h.store, log)
	h.tasks.now = h.clock.Now
	h.janitor = NewJanitor(h.ledger, h.enroll, nil, time.Minute, log)
	return h
}

func (h *harness) enrollUser(t *testing.T, username, pin string, role models.Role) *models.Identity {
	t.Helper()
	sample := voiceWAV()
	id, err := h.enroll.Enroll(context.Background(), EnrollRequest{
		Username: username,
		PIN:      pin,
		Role:     role,
		Samples:  [3][]byte{sample, sample, sample},
	})
	require.NoError(t, err)
	return id
}

// login runs the full challenge and voice sequence, speaking the phrase.
func (h *harness) login(t *testing.T, username, pin string) (*LoginResult, error) {
	t.Helper()
	ticket, err := h.auth.RequestChallenge(context.Background(), username, pin, "10.0.0.1")
	if err != nil {
		return nil, err
	}
	h.asr.set(ticket.Phrase, nil)
	return h.auth.Login(context.Background(), LoginRequest{Username: username, PIN: pin, Audio: voiceWAV(), Source: "10.0.0.1"})
}

func (h *harness) identity(t *testing.T, username string) *models.Identity {
	t.Helper()
	id, err := h.store.Identities(h.store.Conn()).GetByUsername(context.Background(), username)
	require.NoError(t, err)
	return id
}

func (h *harness) attempts(t *testing.T, username string) []*models.LoginAttempt {
	t.Helper()
	out, err := h.store.LoginAttempts(h.store.Conn()).ListByUsername(context.Background(), username, 0)
	require.NoError(t, err)
	return out
}

func reasons(attempts []*models.LoginAttempt) []string {
	out := make([]string, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.FailureReason)
	}
	return out
}

var errModelDown = errors.New("model server down")
