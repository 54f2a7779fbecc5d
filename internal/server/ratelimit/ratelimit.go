// Package ratelimit throttles credentialed operations per source address.
// Keys are sources, never usernames, so a rejection says nothing about
// whether an account exists.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/voicemfa/internal/common"
)

// Limiter admits or rejects one operation from source. A rejection is
// common.ErrRateLimited.
type Limiter interface {
	Allow(ctx context.Context, source string) error
}

const unknownSource = "unknown"

func sourceKey(source string) string {
	if source == "" {
		return unknownSource
	}
	return source
}

// Local keeps one token bucket per source in process memory.
type Local struct {
	limit rate.Limit
	burst int

	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

// NewLocal refills perMinute tokens a minute with room for burst. A
// non-positive perMinute disables throttling.
func NewLocal(perMinute, burst int) *Local {
	l := &Local{
		limit:   rate.Inf,
		burst:   burst,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
	if perMinute > 0 {
		l.limit = rate.Limit(float64(perMinute) / 60)
	}
	if l.burst < 1 {
		l.burst = 1
	}
	return l
}

func (l *Local) Allow(_ context.Context, source string) error {
	now := l.now()
	b := l.bucketFor(sourceKey(source), now)
	b.lastSeen.Store(now.UnixNano())
	if !b.lim.AllowN(now, 1) {
		return common.ErrRateLimited
	}
	return nil
}

func (l *Local) bucketFor(key string, now time.Time) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[key]; ok {
		return b
	}
	b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
	b.lastSeen.Store(now.UnixNano())
	l.buckets[key] = b
	return b
}

// Sweep forgets sources idle for longer than idle and reports how many were
// removed.
func (l *Local) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle).UnixNano()

	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if b.lastSeen.Load() < cutoff {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len reports the number of tracked sources.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
