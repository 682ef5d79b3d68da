package memo_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/stanza/internal/core/ports/mocks"
	"go.trai.ch/stanza/internal/engine/cache"
	"go.trai.ch/stanza/internal/engine/executor"
	"go.trai.ch/stanza/internal/engine/group"
	"go.trai.ch/stanza/internal/engine/memo"
	"go.trai.ch/stanza/internal/engine/retry"
	"go.uber.org/mock/gomock"
)

// memStore is an in-memory ports.EntryStore.
type memStore struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	getErr  error
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]domain.CacheEntry)}
}

func (s *memStore) Get(_ context.Context, key string) (*domain.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memStore) Put(_ context.Context, e domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.entries[e.Key] = e
	return nil
}

func (s *memStore) Touch(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.AccessedAt = at
		s.entries[key] = e
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memStore) DeleteUnchanged(_ context.Context, e domain.CacheEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.entries[e.Key]
	if !ok || !cur.CreatedAt.Equal(e.CreatedAt) || !bytes.Equal(cur.Payload, e.Payload) {
		return false, nil
	}
	delete(s.entries, e.Key)
	return true, nil
}

func (s *memStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteAll(ctx context.Context) (int64, error) { return s.DeletePrefix(ctx, "") }

func (s *memStore) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *memStore) DeleteLeastRecent(context.Context, int) (int64, error) { return 0, nil }

func (s *memStore) Stats(context.Context, time.Time) (domain.CacheStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CacheStats{Entries: int64(len(s.entries))}, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ ports.EntryStore = (*memStore)(nil)

type memoTestMocks struct {
	store  *memStore
	logger *mocks.MockLogger
	clock  *clockwork.FakeClock
}

func setupMemo(t *testing.T) (*memo.Memoizer, memoTestMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := memoTestMocks{
		store:  newMemStore(),
		logger: mocks.NewMockLogger(ctrl),
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)),
	}
	m.logger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	m.logger.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	c := cache.New(m.store, m.clock, m.logger)
	return memo.New(c, m.logger), m
}

func summarizeRequest() memo.Request {
	return memo.Request{
		Operation: "summarize",
		Partition: "db1",
		Params:    map[string]any{"topic": "pricing"},
		TTL:       domain.TTL(time.Minute),
	}
}

func counting(calls *atomic.Int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestDo_MissThenHit(t *testing.T) {
	mz, _ := setupMemo(t)
	ctx := context.Background()
	var calls atomic.Int32

	first, err := memo.Do(ctx, mz, summarizeRequest(), counting(&calls, "summary"))
	require.NoError(t, err)
	assert.Equal(t, "summary", first.Value)
	assert.False(t, first.Cached)

	second, err := memo.Do(ctx, mz, summarizeRequest(), counting(&calls, "other"))
	require.NoError(t, err)
	assert.Equal(t, "summary", second.Value)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ExpiredResultIsRecomputed(t *testing.T) {
	mz, m := setupMemo(t)
	ctx := context.Background()
	var calls atomic.Int32

	_, err := memo.Do(ctx, mz, summarizeRequest(), counting(&calls, "v1"))
	require.NoError(t, err)

	m.clock.Advance(time.Minute + time.Second)
	res, err := memo.Do(ctx, mz, summarizeRequest(), counting(&calls, "v2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Value)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_NoCacheAlwaysComputes(t *testing.T) {
	mz, m := setupMemo(t)
	ctx := context.Background()
	var calls atomic.Int32

	req := summarizeRequest()
	req.NoCache = true
	for range 2 {
		res, err := memo.Do(ctx, mz, req, counting(&calls, "summary"))
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, m.store.len())
}

func TestDo_ComputeErrorIsNotCached(t *testing.T) {
	mz, m := setupMemo(t)
	boom := errors.New("llm unavailable")

	_, err := memo.Do(context.Background(), mz, summarizeRequest(), func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, m.store.len())
}

func TestDo_UnsupportedParam(t *testing.T) {
	mz, _ := setupMemo(t)
	req := summarizeRequest()
	req.Params = map[string]any{"ch": make(chan int)}

	_, err := memo.Do(context.Background(), mz, req, func(context.Context) (string, error) {
		t.Fatal("compute must not run")
		return "", nil
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrUnsupportedParam.Error())
}

func TestDo_LookupFailureComputes(t *testing.T) {
	mz, m := setupMemo(t)
	m.store.getErr = errors.New("disk I/O error")
	m.logger.EXPECT().Warn("cache lookup failed, computing", gomock.Any()).Times(1)
	var calls atomic.Int32

	res, err := memo.Do(context.Background(), mz, summarizeRequest(), counting(&calls, "summary"))
	require.NoError(t, err)
	assert.Equal(t, "summary", res.Value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_StoreFailureStillReturnsValue(t *testing.T) {
	mz, m := setupMemo(t)
	m.store.putErr = errors.New("database is locked")
	m.logger.EXPECT().Warn("failed to store memoized result", gomock.Any()).Times(1)
	var calls atomic.Int32

	res, err := memo.Do(context.Background(), mz, summarizeRequest(), counting(&calls, "summary"))
	require.NoError(t, err)
	assert.Equal(t, "summary", res.Value)
	assert.Zero(t, m.store.len())
}

func TestDo_ConcurrentMissesShareOneComputation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mz, _ := setupMemo(t)
		release := make(chan struct{})
		var calls atomic.Int32

		compute := func(context.Context) (string, error) {
			calls.Add(1)
			<-release
			return "summary", nil
		}

		const callers = 5
		results := make([]memo.Result[string], callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Go(func() {
				res, err := memo.Do(context.Background(), mz, summarizeRequest(), compute)
				assert.NoError(t, err)
				results[i] = res
			})
		}

		synctest.Wait()
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, res := range results {
			assert.Equal(t, "summary", res.Value)
			assert.False(t, res.Cached)
			assert.True(t, res.Shared)
		}
	})
}

func TestRequest_KeyIgnoresTTLAndNoCache(t *testing.T) {
	a := summarizeRequest()
	b := summarizeRequest()
	b.TTL = nil
	b.NoCache = true

	ka, err := a.Key()
	require.NoError(t, err)
	kb, err := b.Key()
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
	assert.True(t, strings.HasPrefix(ka.String(), domain.Prefix("summarize")))
}

func newFactory(t *testing.T, logger *mocks.MockLogger) *executor.Factory {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()

	span := mocks.NewMockSpan(ctrl)
	span.EXPECT().End().AnyTimes()
	span.EXPECT().RecordError(gomock.Any()).AnyTimes()
	span.EXPECT().SetAttribute(gomock.Any(), gomock.Any()).AnyTimes()
	tracer := mocks.NewMockTracer(ctrl)
	tracer.EXPECT().Start(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string) (context.Context, ports.Span) { return ctx, span },
	).AnyTimes()

	f, err := executor.NewFactory(executor.Config{MaxConcurrency: 2}, retry.NewRunner(logger), logger, tracer)
	require.NoError(t, err)
	return f
}

func TestSubmit_RetriesThenCaches(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mz, m := setupMemo(t)
		f := newFactory(t, m.logger)
		policy := domain.RetryPolicy{MaxRetries: 2, InitialDelay: 10 * time.Millisecond, BackoffMultiplier: 2}

		var calls atomic.Int32
		compute := func(context.Context) (string, error) {
			if calls.Add(1) == 1 {
				return "", domain.Transient(errors.New("rate limited"))
			}
			return "summary", nil
		}

		rep, err := group.Run(context.Background(), f, func(g *group.Group) error {
			memo.Submit(mz, g, summarizeRequest(), policy, compute)
			return nil
		})
		require.NoError(t, err)
		require.Len(t, rep.Results, 1)
		assert.Equal(t, 2, rep.Results[0].Attempts())
		res, ok := rep.Results[0].Value().(memo.Result[string])
		require.True(t, ok)
		assert.Equal(t, "summary", res.Value)
		assert.False(t, res.Cached)

		rep, err = group.Run(context.Background(), f, func(g *group.Group) error {
			memo.Submit(mz, g, summarizeRequest(), policy, compute)
			return nil
		})
		require.NoError(t, err)
		require.Len(t, rep.Results, 1)
		res, ok = rep.Results[0].Value().(memo.Result[string])
		require.True(t, ok)
		assert.True(t, res.Cached)
		assert.Equal(t, int32(2), calls.Load())
	})
}
