package domain

import "time"

// CacheEntry is one persisted memoized result.
type CacheEntry struct {
	// Key is the unique fingerprint of the request that produced the payload.
	Key string
	// Payload is the encoded result.
	Payload []byte
	// CreatedAt is when the entry was written.
	CreatedAt time.Time
	// AccessedAt is when the entry was last read or written.
	AccessedAt time.Time
	// TTL is the lifetime of the entry. Nil means the entry never expires.
	TTL *time.Duration
}

// Expired reports whether the entry is no longer valid at now.
// An entry is valid while now - CreatedAt <= TTL.
func (e *CacheEntry) Expired(now time.Time) bool {
	if e.TTL == nil {
		return false
	}
	return now.Sub(e.CreatedAt) > *e.TTL
}

// CacheStats summarizes the contents of the cache store.
type CacheStats struct {
	Entries      int64
	PayloadBytes int64
	Expired      int64
	Oldest       time.Time
	Newest       time.Time
}

// TTL returns a pointer to d, for use with cache writes.
func TTL(d time.Duration) *time.Duration {
	return &d
}
