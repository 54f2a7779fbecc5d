package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/voicemfa/internal/common"
)

const redisKeyPrefix = "vmfa:rl:"

// Redis counts attempts per source in fixed windows shared by every server
// instance. INCR and PTTL go out in one MULTI; a counter without a TTL gets
// one, so a failed expire is repaired by the next hit.
type Redis struct {
	client redis.UniversalClient
	max    int64
	window time.Duration
}

// NewRedis admits max operations per source per window. The bucket burst of
// the in-process limiter has no fixed-window equivalent, so callers pass
// perMinute plus burst as max.
func NewRedis(client redis.UniversalClient, max int, window time.Duration) *Redis {
	return &Redis{client: client, max: int64(max), window: window}
}

// Allow fails closed with a processing error when Redis is unreachable.
func (r *Redis) Allow(ctx context.Context, source string) error {
	if r.max <= 0 {
		return nil
	}
	key := redisKeyPrefix + sourceKey(source)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: rate limiter unavailable: %v", common.ErrProcessing, err)
	}
	if ttl.Val() < 0 {
		if err := r.client.PExpire(ctx, key, r.window).Err(); err != nil {
			return fmt.Errorf("%w: rate limiter unavailable: %v", common.ErrProcessing, err)
		}
	}
	if incr.Val() > r.max {
		return common.ErrRateLimited
	}
	return nil
}
