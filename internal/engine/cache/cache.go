// Package cache implements the persistent fingerprint cache.
//
// Values are stored as checksummed CBOR envelopes in a ports.EntryStore.
// Reads never fail because of a corrupted entry: it is deleted and reported as a miss.
package cache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/zerr"
)

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL sets the TTL used by writes that pass a nil TTL.
func WithDefaultTTL(ttl *time.Duration) Option {
	return func(c *Cache) { c.defaultTTL = ttl }
}

// WithMaxEntries bounds the number of entries Maintain keeps. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// Cache memoizes values under fingerprint keys with optional TTLs.
// It is safe for concurrent use; the store provides per-entry atomicity.
type Cache struct {
	store      ports.EntryStore
	clock      clockwork.Clock
	logger     ports.Logger
	defaultTTL *time.Duration
	maxEntries int
}

// New creates a new Cache.
func New(store ports.EntryStore, clock clockwork.Clock, logger ports.Logger, opts ...Option) *Cache {
	c := &Cache{store: store, clock: clock, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the value cached under key into dst and reports whether it was found.
// Expired and undecodable entries are deleted and reported as misses.
func (c *Cache) Get(ctx context.Context, key domain.CacheKey, dst any) (bool, error) {
	if key == "" {
		return false, domain.ErrEmptyKey
	}

	entry, err := c.store.Get(ctx, key.String())
	if err != nil {
		return false, zerr.With(zerr.Wrap(err, domain.ErrStoreUnavailable.Error()), "key", key.String())
	}
	if entry == nil {
		c.logger.Debug("cache miss", "key", key.String(), "outcome", "miss")
		return false, nil
	}

	now := c.clock.Now()
	if entry.Expired(now) {
		c.logger.Debug("cache entry expired", "key", key.String(), "outcome", "expired")
		c.drop(ctx, entry)
		return false, nil
	}

	if err := decode(entry.Payload, dst); err != nil {
		c.logger.Warn("cache entry corrupted", "key", key.String(), "outcome", "corrupted", "error", err.Error())
		c.drop(ctx, entry)
		return false, nil
	}

	if err := c.store.Touch(ctx, key.String(), now); err != nil {
		c.logger.Warn("failed to update cache access time", "key", key.String(), "error", err.Error())
	}
	c.logger.Debug("cache hit", "key", key.String(), "outcome", "hit")
	return true, nil
}

// drop deletes an entry found to be unusable, unless a writer replaced it since
// it was read. Failures only get logged.
func (c *Cache) drop(ctx context.Context, entry *domain.CacheEntry) {
	removed, err := c.store.DeleteUnchanged(ctx, *entry)
	if err != nil {
		c.logger.Warn("failed to delete cache entry", "key", entry.Key, "error", err.Error())
		return
	}
	if !removed {
		c.logger.Debug("cache entry replaced before removal", "key", entry.Key)
	}
}

// Set stores value under key. A nil ttl uses the default TTL, which may itself be
// nil for entries that never expire. The last writer for a key wins.
func (c *Cache) Set(ctx context.Context, key domain.CacheKey, value any, ttl *time.Duration) error {
	if key == "" {
		return domain.ErrEmptyKey
	}
	if ttl == nil {
		ttl = c.defaultTTL
	}

	payload, err := encode(value)
	if err != nil {
		return zerr.With(err, "key", key.String())
	}

	now := c.clock.Now()
	entry := domain.CacheEntry{
		Key:        key.String(),
		Payload:    payload,
		CreatedAt:  now,
		AccessedAt: now,
		TTL:        ttl,
	}
	if err := c.store.Put(ctx, entry); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrStoreUnavailable.Error()), "key", key.String())
	}
	return nil
}

// Invalidate deletes every entry whose key starts with prefix and returns how many were removed.
// The prefix is matched literally.
func (c *Cache) Invalidate(ctx context.Context, prefix string) (int64, error) {
	n, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, zerr.Wrap(err, domain.ErrStoreUnavailable.Error())
	}
	c.logger.Info("cache invalidated", "prefix", prefix, "removed", n)
	return n, nil
}

// Clear deletes every entry.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteAll(ctx)
	if err != nil {
		return 0, zerr.Wrap(err, domain.ErrStoreUnavailable.Error())
	}
	c.logger.Info("cache cleared", "removed", n)
	return n, nil
}

// Sweep deletes every expired entry.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteExpired(ctx, c.clock.Now())
	if err != nil {
		return 0, zerr.Wrap(err, domain.ErrStoreUnavailable.Error())
	}
	if n > 0 {
		c.logger.Info("expired cache entries removed", "removed", n)
	}
	return n, nil
}

// Evict keeps the keep most recently accessed entries and deletes the rest.
func (c *Cache) Evict(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, zerr.With(domain.ErrInvalidKeep, "keep", keep)
	}
	n, err := c.store.DeleteLeastRecent(ctx, keep)
	if err != nil {
		return 0, zerr.Wrap(err, domain.ErrStoreUnavailable.Error())
	}
	if n > 0 {
		c.logger.Info("least recently used cache entries evicted", "removed", n, "kept", keep)
	}
	return n, nil
}

// Maintain sweeps expired entries and, when a maximum is configured, evicts down to it.
func (c *Cache) Maintain(ctx context.Context) (expired, evicted int64, err error) {
	expired, err = c.Sweep(ctx)
	if err != nil {
		return 0, 0, err
	}
	if c.maxEntries > 0 {
		evicted, err = c.Evict(ctx, c.maxEntries)
		if err != nil {
			return expired, 0, err
		}
	}
	return expired, evicted, nil
}

// Stats summarizes the cache contents.
func (c *Cache) Stats(ctx context.Context) (domain.CacheStats, error) {
	stats, err := c.store.Stats(ctx, c.clock.Now())
	if err != nil {
		return domain.CacheStats{}, zerr.Wrap(err, domain.ErrStoreUnavailable.Error())
	}
	return stats, nil
}
