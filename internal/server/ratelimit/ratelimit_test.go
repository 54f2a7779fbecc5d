package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/voicemfa/internal/common"
)

func TestLocal_BurstThenThrottle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewLocal(60, 3)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "10.0.0.1"), "attempt %d", i+1)
	}
	assert.ErrorIs(t, l.Allow(ctx, "10.0.0.1"), common.ErrRateLimited)

	require.NoError(t, l.Allow(ctx, "10.0.0.2"), "sources are independent")

	now = now.Add(time.Second)
	assert.NoError(t, l.Allow(ctx, "10.0.0.1"), "one token refills per second at 60/min")
	assert.ErrorIs(t, l.Allow(ctx, "10.0.0.1"), common.ErrRateLimited)
}

func TestLocal_Disabled(t *testing.T) {
	l := NewLocal(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Allow(context.Background(), ""))
	}
}

func TestLocal_ConcurrentSameSource(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewLocal(1, 10)
	l.now = func() time.Time { return now }

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "10.0.0.9") == nil {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed.Load())
}

func TestLocal_Sweep(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewLocal(30, 10)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow(context.Background(), "a"))
	now = now.Add(20 * time.Minute)
	require.NoError(t, l.Allow(context.Background(), "b"))
	assert.Equal(t, 2, l.Len())

	assert.Equal(t, 1, l.Sweep(10*time.Minute))
	assert.Equal(t, 1, l.Len())
}

func newRedisLimiter(t *testing.T, max int) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, max, time.Minute), mr
}

func TestRedis_FixedWindow(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "10.0.0.1"))
	}
	assert.ErrorIs(t, l.Allow(ctx, "10.0.0.1"), common.ErrRateLimited)
	assert.NoError(t, l.Allow(ctx, "10.0.0.2"))

	ttl := mr.TTL(redisKeyPrefix + "10.0.0.1")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(time.Minute + time.Second)
	assert.NoError(t, l.Allow(ctx, "10.0.0.1"), "window expired")
}

func TestRedis_CounterWithoutTTLGetsOne(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t, 3)
	key := redisKeyPrefix + "10.0.0.7"

	// left behind by an earlier hit whose expire never landed
	require.NoError(t, mr.Set(key, "2"))
	require.Equal(t, time.Duration(0), mr.TTL(key))

	require.NoError(t, l.Allow(ctx, "10.0.0.7"))
	assert.Greater(t, mr.TTL(key), time.Duration(0))
	assert.ErrorIs(t, l.Allow(ctx, "10.0.0.7"), common.ErrRateLimited)

	mr.FastForward(time.Minute + time.Second)
	assert.NoError(t, l.Allow(ctx, "10.0.0.7"), "source is not throttled forever")
}

func TestRedis_EmptySourceSharesUnknownKey(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t, 5)

	require.NoError(t, l.Allow(ctx, ""))
	assert.True(t, mr.Exists(redisKeyPrefix+unknownSource))
}

func TestRedis_Unavailable(t *testing.T) {
	l, mr := newRedisLimiter(t, 5)
	mr.Close()

	err := l.Allow(context.Background(), "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrProcessing)
}
