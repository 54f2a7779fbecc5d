package grpc

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// dialBare serves a server without backing services on a bufconn.
func dialBare(t *testing.T, maxAudioBytes int64) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("bufnet", logging.Nop{}, Services{}, maxAudioBytes).NewServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestNewServer_PingAndMessageLimit(t *testing.T) {
	conn := dialBare(t, 1)
	ctx := context.Background()

	resp := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, FullMethod(MethodPing), &structpb.Struct{}, resp))
	assert.Equal(t, "OK", resp.GetFields()["status"].GetStringValue())

	big, err := structpb.NewStruct(map[string]any{"audio": strings.Repeat("A", 2<<20)})
	require.NoError(t, err)
	err = conn.Invoke(ctx, FullMethod(MethodLogin), big, new(structpb.Struct))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestNewServer_ProtectedMethodNeedsToken(t *testing.T) {
	conn := dialBare(t, 1<<20)

	for _, m := range []string{MethodClockOut, MethodToday, MethodListTasks, MethodAssignTask} {
		err := conn.Invoke(context.Background(), FullMethod(m), &structpb.Struct{}, new(structpb.Struct))
		assert.Equal(t, codes.Unauthenticated, status.Code(err), m)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop{}, Services{}, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop{}, Services{}, 1<<20)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
