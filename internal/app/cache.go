package app

import (
	"context"

	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/engine/cache"
)

// CacheStats summarizes the cache store named by the configuration.
func (a *App) CacheStats(ctx context.Context) (domain.CacheStats, error) {
	var stats domain.CacheStats
	err := a.withCache(ctx, func(c *cache.Cache) error {
		var err error
		stats, err = c.Stats(ctx)
		return err
	})
	return stats, err
}

// ClearCache removes every cached result.
func (a *App) ClearCache(ctx context.Context) (int64, error) {
	return a.countingCacheOp(ctx, func(c *cache.Cache) (int64, error) { return c.Clear(ctx) })
}

// InvalidateCache removes every cached result whose key starts with prefix.
func (a *App) InvalidateCache(ctx context.Context, prefix string) (int64, error) {
	return a.countingCacheOp(ctx, func(c *cache.Cache) (int64, error) { return c.Invalidate(ctx, prefix) })
}

// InvalidateJob removes every cached result of the named job.
func (a *App) InvalidateJob(ctx context.Context, name string) (int64, error) {
	return a.InvalidateCache(ctx, domain.Prefix(name))
}

// SweepCache removes every expired result.
func (a *App) SweepCache(ctx context.Context) (int64, error) {
	return a.countingCacheOp(ctx, func(c *cache.Cache) (int64, error) { return c.Sweep(ctx) })
}

// EvictCache keeps the keep most recently used results and removes the rest.
func (a *App) EvictCache(ctx context.Context, keep int) (int64, error) {
	return a.countingCacheOp(ctx, func(c *cache.Cache) (int64, error) { return c.Evict(ctx, keep) })
}

func (a *App) countingCacheOp(ctx context.Context, op func(*cache.Cache) (int64, error)) (int64, error) {
	var n int64
	err := a.withCache(ctx, func(c *cache.Cache) error {
		var err error
		n, err = op(c)
		return err
	})
	return n, err
}

// withCache opens the configured store for the duration of fn.
func (a *App) withCache(ctx context.Context, fn func(*cache.Cache) error) (err error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	store, err := a.opener.Open(ctx, cfg.Cache.Path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(a.newCache(store, cfg))
}
