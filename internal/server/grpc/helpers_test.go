package grpc

import (
	"context"
	"encoding/base64"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/audio"
	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/cryptox"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server/auth"
	"github.com/dmitrijs2005/voicemfa/internal/server/biometric"
	"github.com/dmitrijs2005/voicemfa/internal/server/credentials"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/memory"
	"github.com/dmitrijs2005/voicemfa/internal/server/services"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ownVoice   = []float32{0.8, 0.1, 0.4, 0.2, 0.3}
	otherVoice = []float32{-0.2, 0.9, -0.1, 0.1, -0.4}
)

type realSpoof struct{}

func (realSpoof) DetectSpoof(context.Context, []byte, bool) (biometric.SpoofVerdict, error) {
	return biometric.SpoofVerdict{IsReal: true, Confidence: 0.98, Label: "REAL"}, nil
}

type passEnhancer struct{}

func (passEnhancer) Enhance(_ context.Context, s audio.Signal) (audio.Signal, error) {
	return s, nil
}

type switchEmbedder struct {
	mu  sync.Mutex
	vec []float32
}

func (e *switchEmbedder) Embed(context.Context, audio.Signal) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float32(nil), e.vec...), nil
}

func (e *switchEmbedder) set(vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vec = vec
}

func voiceB64() string {
	const rate = 16000
	out := make([]float32, rate)
	for i := range out {
		var v float64
		for k := 1; k <= 40; k++ {
			v += math.Sin(2*math.Pi*150*float64(k)*float64(i)/rate) / float64(k)
		}
		out[i] = float32(v)
	}
	wav := audio.EncodeWAV(audio.NormalizePeak(audio.Signal{Samples: out, SampleRate: rate}, -6))
	return base64.StdEncoding.EncodeToString(wav)
}

type testEnv struct {
	conn   *grpc.ClientConn
	embed  *switchEmbedder
	enroll *services.EnrollmentService
	issuer *auth.Issuer
}

// newTestEnv serves the real services over an in-memory store on a bufconn.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logging.Nop{}
	store := memory.New()
	env := &testEnv{embed: &switchEmbedder{vec: ownVoice}}

	vault, err := cryptox.NewVault(make([]byte, cryptox.KeySize))
	require.NoError(t, err)
	creds, err := credentials.NewStore(credentials.MinCost)
	require.NoError(t, err)
	env.issuer, err = auth.NewIssuer([]byte("grpc-test-signing-key-0123456789abcdef"), time.Hour)
	require.NoError(t, err)
	gate, err := biometric.NewGate(biometric.Capabilities{Enhancer: passEnhancer{}, Spoof: realSpoof{}, Embedder: env.embed}, vault, biometric.DefaultPolicy(), log)
	require.NoError(t, err)

	ledger := services.NewChallengeLedger(store, store, services.ChallengePolicy{TTL: 5 * time.Minute, AllowedMisses: 2}, log)
	guard := services.NewLockoutGuard(store, 5, 15*time.Minute, log)
	attendance := services.NewAttendanceEngine(store, store, gate, services.ShiftPolicy{EndHour: 17, FinePerHour: 50}, log)
	authSvc := services.NewAuthService(services.AuthDeps{
		Tx: store, Repos: store, Creds: creds, Guard: guard, Ledger: ledger,
		Gate: gate, Issuer: env.issuer, Attendance: attendance, Logger: log,
	})
	env.enroll = services.NewEnrollmentService(store, store, creds, gate, vault, nil, 30*time.Minute, log)

	gs := NewGRPCServer("bufnet", log, Services{
		Auth:       authSvc,
		Enrollment: env.enroll,
		Attendance: attendance,
		Tasks:      services.NewTaskService(store, store, log),
	}, 10<<20)

	lis := bufconn.Listen(1 << 20)
	srv := gs.NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	env.conn, err = grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(64<<20)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.conn.Close() })
	return env
}

// call invokes method with in as the request Struct, sending token when set.
func (e *testEnv) call(t *testing.T, method, token string, in map[string]any) (map[string]any, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, common.AccessTokenHeaderName, token)
	}

	out := new(structpb.Struct)
	if err := e.conn.Invoke(ctx, FullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// loginAs enrolls nothing; it runs the challenge and the voice step and
// returns the session token.
func (e *testEnv) loginAs(t *testing.T, username, pin string) string {
	t.Helper()
	_, err := e.call(t, MethodRequestChallenge, "", map[string]any{"username": username, "pin": pin})
	require.NoError(t, err)
	out, err := e.call(t, MethodLogin, "", map[string]any{"username": username, "pin": pin, "audio": voiceB64()})
	require.NoError(t, err)
	return out["token"].(string)
}

func decodeB64(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}
