// Package sqlite implements the durable cache entry store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/stanza/internal/adapters/sqlite/migrations"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/zerr"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const pragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// Store implements ports.EntryStore on a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens the store at path, creating the file and its directory when missing,
// and applies the schema migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, zerr.With(domain.ErrStoreOpenFailed, "reason", "empty path")
	}
	clean := filepath.Clean(path)

	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreCreateFailed.Error()), "path", dir)
		}
	}

	db, err := sql.Open("sqlite", clean+pragmas)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreOpenFailed.Error()), "path", clean)
	}
	// One connection serializes writers so concurrent goroutines never see SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreOpenFailed.Error()), "path", clean)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreMigrationFailed.Error()), "path", clean)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get retrieves the entry stored under key.
// Returns nil, nil if not found.
func (s *Store) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	var (
		entry    domain.CacheEntry
		created  int64
		accessed int64
		ttl      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT key, payload, created_at, accessed_at, ttl_seconds
FROM cache_entries
WHERE key = ?`, key).Scan(&entry.Key, &entry.Payload, &created, &accessed, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read cache entry")
	}

	entry.CreatedAt = fromMillis(created)
	entry.AccessedAt = fromMillis(accessed)
	if ttl.Valid {
		entry.TTL = domain.TTL(time.Duration(ttl.Int64) * time.Second)
	}
	return &entry, nil
}

// Put inserts the entry or fully replaces the one stored under the same key.
func (s *Store) Put(ctx context.Context, entry domain.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cache_entries (key, payload, created_at, accessed_at, ttl_seconds)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	payload = excluded.payload,
	created_at = excluded.created_at,
	accessed_at = excluded.accessed_at,
	ttl_seconds = excluded.ttl_seconds`,
		entry.Key,
		entry.Payload,
		entry.CreatedAt.UnixMilli(),
		entry.AccessedAt.UnixMilli(),
		ttlSeconds(entry.TTL),
	)
	if err != nil {
		return zerr.Wrap(err, "failed to write cache entry")
	}
	return nil
}

// Touch sets the access time of the entry stored under key.
func (s *Store) Touch(ctx context.Context, key string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE cache_entries SET accessed_at = ? WHERE key = ?", at.UnixMilli(), key,
	); err != nil {
		return zerr.Wrap(err, "failed to update cache entry")
	}
	return nil
}

// Delete removes the entry stored under key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return zerr.Wrap(err, "failed to delete cache entry")
	}
	return nil
}

// DeleteUnchanged removes the entry only while the stored row still has the
// creation time and payload that were read, so a concurrent Put survives.
func (s *Store) DeleteUnchanged(ctx context.Context, entry domain.CacheEntry) (bool, error) {
	n, err := s.exec(ctx,
		"DELETE FROM cache_entries WHERE key = ? AND created_at = ? AND payload = ?",
		entry.Key, entry.CreatedAt.UnixMilli(), entry.Payload)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletePrefix removes every entry whose key starts with prefix.
// The match is a byte-wise range scan, so the prefix is literal and case-sensitive.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	upper, bounded := successor(prefix)
	if !bounded {
		return s.exec(ctx, "DELETE FROM cache_entries WHERE key >= ?", prefix)
	}
	return s.exec(ctx, "DELETE FROM cache_entries WHERE key >= ? AND key < ?", prefix, upper)
}

// DeleteAll removes every entry.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	return s.exec(ctx, "DELETE FROM cache_entries")
}

// DeleteExpired removes every entry whose TTL has elapsed at now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.exec(ctx, `
DELETE FROM cache_entries
WHERE ttl_seconds IS NOT NULL AND created_at + ttl_seconds * 1000 < ?`, now.UnixMilli())
}

// DeleteLeastRecent removes all but the keep most recently accessed entries.
func (s *Store) DeleteLeastRecent(ctx context.Context, keep int) (int64, error) {
	return s.exec(ctx, `
DELETE FROM cache_entries
WHERE key NOT IN (
	SELECT key FROM cache_entries ORDER BY accessed_at DESC, key ASC LIMIT ?
)`, keep)
}

// Stats summarizes the stored entries as of now.
func (s *Store) Stats(ctx context.Context, now time.Time) (domain.CacheStats, error) {
	var (
		stats          domain.CacheStats
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(LENGTH(payload)), 0),
	COALESCE(SUM(CASE WHEN ttl_seconds IS NOT NULL AND created_at + ttl_seconds * 1000 < ? THEN 1 ELSE 0 END), 0),
	MIN(created_at),
	MAX(created_at)
FROM cache_entries`, now.UnixMilli()).Scan(&stats.Entries, &stats.PayloadBytes, &stats.Expired, &oldest, &newest)
	if err != nil {
		return domain.CacheStats{}, zerr.Wrap(err, "failed to read cache statistics")
	}
	if oldest.Valid {
		stats.Oldest = fromMillis(oldest.Int64)
	}
	if newest.Valid {
		stats.Newest = fromMillis(newest.Int64)
	}
	return stats, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, zerr.Wrap(err, "failed to delete cache entries")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, zerr.Wrap(err, "failed to count deleted cache entries")
	}
	return n, nil
}

// successor returns the smallest string greater than every string with the given prefix.
// It reports false when no such bound exists, as for an empty prefix.
func successor(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

// ttlSeconds converts a TTL to whole seconds, rounding up so short TTLs never become zero.
func ttlSeconds(ttl *time.Duration) any {
	if ttl == nil {
		return nil
	}
	secs := int64(*ttl / time.Second)
	if *ttl%time.Second > 0 {
		secs++
	}
	return secs
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
