// Package throttle funnels external service calls through a shared limiter:
// a cap on concurrent in-flight requests, a minimum inter-request interval,
// and deduplication of identical concurrent requests. Lookups with immutable
// results can layer a process-lifetime cache on top.
package throttle

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Limiter bounds request concurrency and pacing. Callers issuing the same
// key concurrently share a single in-flight call and its result.
type Limiter struct {
	limiter *rate.Limiter
	sem     chan struct{}
	flight  singleflight.Group
}

// New creates a Limiter allowing maxConcurrent in-flight requests with at
// least interval between request starts. maxConcurrent <= 0 means unbounded;
// interval 0 disables pacing.
func New(maxConcurrent int, interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	l := &Limiter{limiter: rate.NewLimiter(limit, 1)}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

// Do runs fn under the limiter. Concurrent calls with an equal key await the
// first call's result instead of issuing duplicates.
func (l *Limiter) Do(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	v, err, _ := l.flight.Do(key, func() (interface{}, error) {
		if l.sem != nil {
			select {
			case l.sem <- struct{}{}:
				defer func() { <-l.sem }()
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return fn()
	})
	return v, err
}

// Cached wraps a Limiter with a permanent result cache for idempotent
// lookups. Entries are never evicted within a process lifetime.
type Cached[V any] struct {
	limiter *Limiter
	cache   *xsync.Map[string, V]
}

// NewCached creates a caching limiter sharing the given Limiter.
func NewCached[V any](limiter *Limiter) *Cached[V] {
	return &Cached[V]{
		limiter: limiter,
		cache:   xsync.NewMap[string, V](),
	}
}

// Seed stores a result without issuing a request.
func (c *Cached[V]) Seed(key string, value V) {
	c.cache.Store(key, value)
}

// Do returns the cached result for key or runs fn under the limiter and
// caches its successful result.
func (c *Cached[V]) Do(ctx context.Context, key string, fn func() (V, error)) (V, error) {
	if v, ok := c.cache.Load(key); ok {
		return v, nil
	}
	v, err := c.limiter.Do(ctx, key, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero V
		return zero, err
	}
	result := v.(V)
	c.cache.Store(key, result)
	return result, nil
}
