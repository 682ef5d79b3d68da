// Package memo runs computations through the fingerprint cache.
//
// A request is looked up by its cache key; on a miss the computation runs and
// its result is stored with the request's TTL. Concurrent misses for the same
// key share one computation.
package memo

import (
	"context"
	"time"

	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/stanza/internal/engine/cache"
	"go.trai.ch/stanza/internal/engine/executor"
	"go.trai.ch/stanza/internal/engine/group"
	"golang.org/x/sync/singleflight"
)

// Request describes one logical, memoizable computation.
type Request struct {
	// Operation names the computation and is the invalidation prefix of its key.
	Operation string
	// Partition scopes the key, typically a dataset or database identifier.
	Partition string
	// Params are the inputs the result depends on.
	Params map[string]any
	// TTL bounds how long the result stays valid. Nil uses the cache default.
	TTL *time.Duration
	// NoCache forces the computation to run and skips storing its result.
	NoCache bool
}

// Key returns the cache key of the request.
func (r Request) Key() (domain.CacheKey, error) {
	return domain.DeriveKey(r.Operation, r.Partition, r.Params)
}

// Result is the outcome of a memoized computation.
type Result[T any] struct {
	Value T
	// Cached reports that the value came from the cache.
	Cached bool
	// Shared reports that the value was computed by a concurrent caller for the same key.
	Shared bool
}

// Memoizer wraps computations with cache lookups and stores.
type Memoizer struct {
	cache  *cache.Cache
	logger ports.Logger
	flight singleflight.Group
}

// New creates a new Memoizer.
func New(c *cache.Cache, logger ports.Logger) *Memoizer {
	return &Memoizer{cache: c, logger: logger}
}

// Do returns the cached value for req or runs compute and caches its result.
//
// The cache never fails a computation: lookup errors count as misses and
// store errors only get logged. Errors from compute are returned and never cached.
// A collapsed miss runs with the context of the caller that started it.
func Do[T any](ctx context.Context, m *Memoizer, req Request, compute func(context.Context) (T, error)) (Result[T], error) {
	key, err := req.Key()
	if err != nil {
		return Result[T]{}, err
	}

	if req.NoCache {
		v, err := compute(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		return Result[T]{Value: v}, nil
	}

	if v, ok := lookup[T](ctx, m, key); ok {
		return Result[T]{Value: v, Cached: true}, nil
	}

	raw, err, shared := m.flight.Do(key.String(), func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.cache.Set(ctx, key, v, req.TTL); err != nil {
			m.logger.Warn("failed to store memoized result", "key", key.String(), "error", err.Error())
		}
		return v, nil
	})
	if err != nil {
		return Result[T]{}, err
	}
	if shared {
		m.logger.Debug("memoized computation shared", "key", key.String())
	}

	v, _ := raw.(T)
	return Result[T]{Value: v, Shared: shared}, nil
}

func lookup[T any](ctx context.Context, m *Memoizer, key domain.CacheKey) (T, bool) {
	var v T
	hit, err := m.cache.Get(ctx, key, &v)
	if err != nil {
		m.logger.Warn("cache lookup failed, computing", "key", key.String(), "error", err.Error())
		return v, false
	}
	return v, hit
}

// Submit schedules a memoized computation on the group's executor.
// The handle's value is a Result[T].
func Submit[T any](
	m *Memoizer,
	g *group.Group,
	req Request,
	policy domain.RetryPolicy,
	compute func(context.Context) (T, error),
) *executor.Handle {
	return g.Submit(req.Operation, func(ctx context.Context) (any, error) {
		res, err := Do(ctx, m, req, compute)
		if err != nil {
			return nil, err
		}
		return res, nil
	}, policy)
}
