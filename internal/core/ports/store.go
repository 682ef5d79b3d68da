package ports

import (
	"context"
	"time"

	"go.trai.ch/stanza/internal/core/domain"
)

// EntryStore defines the durable table of cache entries.
// Every method is safe for concurrent use and each write is atomic per entry.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
type EntryStore interface {
	// Get retrieves the entry stored under key.
	// Returns nil, nil if not found.
	Get(ctx context.Context, key string) (*domain.CacheEntry, error)

	// Put inserts the entry or fully replaces the one stored under the same key.
	Put(ctx context.Context, entry domain.CacheEntry) error

	// Touch sets the access time of the entry stored under key.
	Touch(ctx context.Context, key string, at time.Time) error

	// Delete removes the entry stored under key, if any.
	Delete(ctx context.Context, key string) error

	// DeleteUnchanged removes the entry stored under entry.Key only if it is still
	// the version that was read: same creation time and payload. It reports
	// whether a row was removed.
	DeleteUnchanged(ctx context.Context, entry domain.CacheEntry) (bool, error)

	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)

	// DeleteAll removes every entry.
	DeleteAll(ctx context.Context) (int64, error)

	// DeleteExpired removes every entry whose TTL has elapsed at now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// DeleteLeastRecent removes all but the keep most recently accessed entries.
	DeleteLeastRecent(ctx context.Context, keep int) (int64, error)

	// Stats summarizes the stored entries as of now.
	Stats(ctx context.Context, now time.Time) (domain.CacheStats, error)

	// Close releases the underlying database.
	Close() error
}

// StoreOpener opens the durable entry store located at a path.
type StoreOpener interface {
	Open(ctx context.Context, path string) (EntryStore, error)
}
