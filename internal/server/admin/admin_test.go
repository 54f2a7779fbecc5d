package admin

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/logging"
	"github.com/dmitrijs2005/voicemfa/internal/server"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/dmitrijs2005/voicemfa/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

// sharedStorage makes every command see the same in-memory store.
func sharedStorage(t *testing.T) (*memory.Store, *int) {
	t.Helper()
	store := memory.New()
	closed := 0
	orig := openStorage
	openStorage = func(context.Context, string) (*server.Storage, error) {
		return &server.Storage{Tx: store, Repos: store, Close: func() error { closed++; return nil }}, nil
	}
	t.Cleanup(func() { openStorage = orig })
	return store, &closed
}

func newTestTool() (*Tool, *bytes.Buffer) {
	var out bytes.Buffer
	tool := NewTool(server.MemoryDSN, &out, logging.Nop{})
	tool.now = func() time.Time { return now }
	return tool, &out
}

func TestRun_Usage(t *testing.T) {
	tool, _ := newTestTool()
	ctx := context.Background()

	require.ErrorIs(t, tool.Run(ctx, nil), ErrUsage)
	require.ErrorIs(t, tool.Run(ctx, []string{"drop"}), ErrUsage)
	require.ErrorIs(t, tool.Run(ctx, []string{"promote"}), ErrUsage)
}

func TestRun_Keygen(t *testing.T) {
	tool, out := newTestTool()

	require.NoError(t, tool.Run(context.Background(), []string{"keygen"}))
	key, err := hex.DecodeString(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestRun_Migrate(t *testing.T) {
	_, closed := sharedStorage(t)
	tool, out := newTestTool()

	require.NoError(t, tool.Run(context.Background(), []string{"migrate"}))
	assert.Contains(t, out.String(), "up to date")
	assert.Equal(t, 1, *closed)
}

func TestRun_MigrateOpenError(t *testing.T) {
	orig := openStorage
	openStorage = func(context.Context, string) (*server.Storage, error) { return nil, errors.New("dial") }
	t.Cleanup(func() { openStorage = orig })

	tool, _ := newTestTool()
	require.EqualError(t, tool.Run(context.Background(), []string{"migrate"}), "dial")
}

func TestRun_Promote(t *testing.T) {
	store, closed := sharedStorage(t)
	ctx := context.Background()
	_, err := store.Identities(store.Conn()).Create(ctx, &models.Identity{
		Username: "alice", PINHash: []byte("h"), Role: models.RoleEmployee, Active: true, CreatedAt: now,
	})
	require.NoError(t, err)

	tool, out := newTestTool()
	require.NoError(t, tool.Run(ctx, []string{"promote", "alice"}))
	assert.Contains(t, out.String(), "alice is now admin")

	id, err := store.Identities(store.Conn()).GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, id.Role)

	err = tool.Run(ctx, []string{"promote", "nobody"})
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, 2, *closed)
}

func TestRun_Purge(t *testing.T) {
	store, _ := sharedStorage(t)
	ctx := context.Background()

	challenges := store.Challenges(store.Conn())
	_, err := challenges.Create(ctx, &models.Challenge{Username: "alice", Phrase: "old", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = challenges.Create(ctx, &models.Challenge{Username: "bob", Phrase: "fresh", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})
	require.NoError(t, err)

	require.NoError(t, store.Enrollments(store.Conn()).Create(ctx, &models.PendingEnrollment{
		Username: "carol", PINHash: []byte("h"), Role: models.RoleEmployee, CreatedAt: now.Add(-time.Hour), ExpiresAt: now,
	}))

	tool, out := newTestTool()
	require.NoError(t, tool.Run(ctx, []string{"purge"}))
	assert.Contains(t, out.String(), "removed 1 expired challenges, 1 expired enrollments")

	out.Reset()
	require.NoError(t, tool.Run(ctx, []string{"purge"}))
	assert.Contains(t, out.String(), "removed 0 expired challenges, 0 expired enrollments")
}
