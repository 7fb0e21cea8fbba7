// Package coalescer collapses concurrent requests for the same key into one
// producer call and keeps the result for a while.
package coalescer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
)

// Cache stores produced values by key.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Lookup outcomes reported to the Recorder.
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupShared = "shared"
)

// Recorder observes lookups.
type Recorder interface {
	Lookup(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Lookup(string) {}

// Coalescer shares one in-flight producer per key and caches successful
// results for their ttl. Errors are returned to every waiting caller and are
// not cached.
type Coalescer[V any] struct {
	group singleflight.Group
	cache Cache[V]
	rec   Recorder
	log   logger.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

// New creates a Coalescer over cache. rec may be nil.
func New[V any](cache Cache[V], rec Recorder, log logger.Logger) *Coalescer[V] {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Coalescer[V]{
		cache:       cache,
		rec:         rec,
		log:         logger.Component(log, "coalescer"),
		generations: make(map[string]uint64),
	}
}

// Do returns the cached value for key or runs producer, sharing the call with
// concurrent callers of the same key. The producer is not cancelled when the
// caller that started it goes away; a caller whose ctx ends stops waiting.
func (c *Coalescer[V]) Do(ctx context.Context, key string, ttl time.Duration, producer func(context.Context) (V, error)) (V, error) {
	var zero V

	if v, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("Cache read failed", logger.String("key", key), logger.Error(err))
	} else if ok {
		c.rec.Lookup(LookupHit)
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		gen := c.generation(key)
		pctx := context.WithoutCancel(ctx)

		v, err := producer(pctx)
		if err != nil {
			return nil, err
		}
		c.store(pctx, key, gen, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.rec.Lookup(LookupShared)
		} else {
			c.rec.Lookup(LookupMiss)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(V)
		if !ok {
			return zero, fmt.Errorf("coalescer: unexpected value type %T for %s", res.Val, key)
		}
		return v, nil
	}
}

// Invalidate drops the cached value and detaches any in-flight call for key.
// Callers already waiting on that call still receive its result, but it is
// not cached; the next Do starts a new producer.
func (c *Coalescer[V]) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	c.generations[key]++
	c.mu.Unlock()

	c.group.Forget(key)
	if err := c.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	return nil
}

// store caches v unless key was invalidated after the flight started. The
// cache write runs without c.mu; an Invalidate that lands during it is caught
// by the second generation check and the stale entry is removed.
func (c *Coalescer[V]) store(ctx context.Context, key string, gen uint64, v V, ttl time.Duration) {
	if c.generation(key) != gen {
		return
	}
	if err := c.cache.Set(ctx, key, v, ttl); err != nil {
		c.log.Warn("Cache write failed", logger.String("key", key), logger.Error(err))
		return
	}
	if c.generation(key) == gen {
		return
	}
	if err := c.cache.Delete(ctx, key); err != nil {
		c.log.Warn("Failed to drop stale cache entry", logger.String("key", key), logger.Error(err))
	}
}

func (c *Coalescer[V]) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key]
}
