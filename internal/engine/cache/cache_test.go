package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports/mocks"
	"go.trai.ch/stanza/internal/engine/cache"
	"go.uber.org/mock/gomock"
)

type cacheTestMocks struct {
	store  *mocks.MockEntryStore
	logger *mocks.MockLogger
	clock  *clockwork.FakeClock
}

func setupCache(t *testing.T, opts ...cache.Option) (*cache.Cache, cacheTestMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := cacheTestMocks{
		store:  mocks.NewMockEntryStore(ctrl),
		logger: mocks.NewMockLogger(ctrl),
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)),
	}
	m.logger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	m.logger.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	return cache.New(m.store, m.clock, m.logger, opts...), m
}

// memoryStore wires Put and Get of a mocked store to a single stored entry.
func memoryStore(m cacheTestMocks) {
	var stored *domain.CacheEntry
	m.store.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e domain.CacheEntry) error {
			stored = &e
			return nil
		},
	).AnyTimes()
	m.store.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, key string) (*domain.CacheEntry, error) {
			if stored == nil || stored.Key != key {
				return nil, nil
			}
			e := *stored
			return &e, nil
		},
	).AnyTimes()
}

type summary struct {
	Label string
	Count int
}

func TestCache_RoundTrip(t *testing.T) {
	c, m := setupCache(t)
	memoryStore(m)
	key := domain.MustDeriveKey("summarize", "db1", map[string]any{"topic": "pricing"})
	m.store.EXPECT().Touch(gomock.Any(), key.String(), m.clock.Now()).Return(nil)

	require.NoError(t, c.Set(context.Background(), key, summary{Label: "pricing", Count: 12}, nil))

	var got summary
	hit, err := c.Get(context.Background(), key, &got)

	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, summary{Label: "pricing", Count: 12}, got)
}

func TestCache_SetRecordsTimestampsAndTTL(t *testing.T) {
	c, m := setupCache(t, cache.WithDefaultTTL(domain.TTL(time.Hour)))

	var entries []domain.CacheEntry
	m.store.EXPECT().Put(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e domain.CacheEntry) error {
			entries = append(entries, e)
			return nil
		},
	).Times(2)

	require.NoError(t, c.Set(context.Background(), "op:a", 1, nil))
	require.NoError(t, c.Set(context.Background(), "op:b", 2, domain.TTL(time.Minute)))

	require.Len(t, entries, 2)
	assert.Equal(t, m.clock.Now(), entries[0].CreatedAt)
	assert.Equal(t, m.clock.Now(), entries[0].AccessedAt)
	assert.Equal(t, time.Hour, *entries[0].TTL)
	assert.Equal(t, time.Minute, *entries[1].TTL)
}

func TestCache_Miss(t *testing.T) {
	c, m := setupCache(t)
	m.store.EXPECT().Get(gomock.Any(), "op:missing").Return(nil, nil)

	var got string
	hit, err := c.Get(context.Background(), "op:missing", &got)

	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_TTLExpiry(t *testing.T) {
	c, m := setupCache(t)
	memoryStore(m)
	m.store.EXPECT().Touch(gomock.Any(), "op:k", gomock.Any()).Return(nil)
	m.store.EXPECT().DeleteUnchanged(gomock.Any(), gomock.Any()).Return(true, nil)

	require.NoError(t, c.Set(context.Background(), "op:k", "v", domain.TTL(10*time.Second)))

	m.clock.Advance(10 * time.Second)
	var got string
	hit, err := c.Get(context.Background(), "op:k", &got)
	require.NoError(t, err)
	assert.True(t, hit, "entry is valid exactly at its TTL")

	m.clock.Advance(time.Second)
	hit, err = c.Get(context.Background(), "op:k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_CorruptedEntryIsDeletedAndMissed(t *testing.T) {
	c, m := setupCache(t)
	corrupted := domain.CacheEntry{
		Key:       "op:k",
		Payload:   []byte("not an envelope"),
		CreatedAt: m.clock.Now(),
	}
	m.store.EXPECT().Get(gomock.Any(), "op:k").Return(&corrupted, nil)
	m.store.EXPECT().DeleteUnchanged(gomock.Any(), corrupted).Return(true, nil)
	m.logger.EXPECT().Warn("cache entry corrupted", gomock.Any())

	var got string
	hit, err := c.Get(context.Background(), "op:k", &got)

	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_TypeMismatchIsAMiss(t *testing.T) {
	c, m := setupCache(t)
	memoryStore(m)
	m.store.EXPECT().DeleteUnchanged(gomock.Any(), gomock.Any()).Return(true, nil)
	m.logger.EXPECT().Warn("cache entry corrupted", gomock.Any())

	require.NoError(t, c.Set(context.Background(), "op:k", "text", nil))

	var got int
	hit, err := c.Get(context.Background(), "op:k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_StoreFailures(t *testing.T) {
	c, m := setupCache(t)
	diskErr := errors.New("disk I/O error")
	m.store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, diskErr)
	m.store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(diskErr)

	var got string
	_, err := c.Get(context.Background(), "op:k", &got)
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrStoreUnavailable.Error())

	err = c.Set(context.Background(), "op:k", "v", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrStoreUnavailable.Error())
}

func TestCache_TouchFailureStillHits(t *testing.T) {
	c, m := setupCache(t)
	memoryStore(m)
	m.store.EXPECT().Touch(gomock.Any(), "op:k", gomock.Any()).Return(errors.New("database is locked"))
	m.logger.EXPECT().Warn("failed to update cache access time", gomock.Any())

	require.NoError(t, c.Set(context.Background(), "op:k", "v", nil))

	var got string
	hit, err := c.Get(context.Background(), "op:k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "v", got)
}

func TestCache_EmptyKey(t *testing.T) {
	c, _ := setupCache(t)

	_, err := c.Get(context.Background(), "", new(string))
	require.ErrorIs(t, err, domain.ErrEmptyKey)
	require.ErrorIs(t, c.Set(context.Background(), "", "v", nil), domain.ErrEmptyKey)
}

func TestCache_EncodeFailure(t *testing.T) {
	c, _ := setupCache(t)

	err := c.Set(context.Background(), "op:k", func() {}, nil)

	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrEncodeFailed.Error())
}

func TestCache_Maintenance(t *testing.T) {
	c, m := setupCache(t, cache.WithMaxEntries(100))
	ctx := context.Background()

	m.store.EXPECT().DeletePrefix(ctx, "job:").Return(int64(2), nil)
	m.store.EXPECT().DeleteAll(ctx).Return(int64(5), nil)
	m.store.EXPECT().DeleteExpired(ctx, m.clock.Now()).Return(int64(3), nil).Times(2)
	m.store.EXPECT().DeleteLeastRecent(ctx, 100).Return(int64(7), nil)
	m.store.EXPECT().DeleteLeastRecent(ctx, 10).Return(int64(1), nil)
	m.store.EXPECT().Stats(ctx, m.clock.Now()).Return(domain.CacheStats{Entries: 4}, nil)

	n, err := c.Invalidate(ctx, "job:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = c.Evict(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	expired, evicted, err := c.Maintain(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	assert.Equal(t, int64(7), evicted)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Entries)
}

func TestCache_EvictRejectsNegativeKeep(t *testing.T) {
	c, _ := setupCache(t)

	_, err := c.Evict(context.Background(), -1)

	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrInvalidKeep.Error())
}
