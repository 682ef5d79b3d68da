package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stanza/cmd/stanza/commands"
	"go.trai.ch/stanza/internal/app"
	"go.trai.ch/stanza/internal/build"
	"go.trai.ch/stanza/internal/core/domain"
)

type mockApp struct {
	runFunc        func(ctx context.Context, jobfile string, opts app.RunOptions) (*app.RunReport, error)
	stats          domain.CacheStats
	invalidated    string
	invalidatedJob string
	evictKeep      int
	calls          []string
	err            error
}

func (m *mockApp) Run(ctx context.Context, jobfile string, opts app.RunOptions) (*app.RunReport, error) {
	if m.runFunc != nil {
		return m.runFunc(ctx, jobfile, opts)
	}
	return &app.RunReport{}, nil
}

func (m *mockApp) CacheStats(context.Context) (domain.CacheStats, error) {
	m.calls = append(m.calls, "stats")
	return m.stats, m.err
}

func (m *mockApp) ClearCache(context.Context) (int64, error) {
	m.calls = append(m.calls, "clear")
	return 3, m.err
}

func (m *mockApp) InvalidateCache(_ context.Context, prefix string) (int64, error) {
	m.calls = append(m.calls, "invalidate")
	m.invalidated = prefix
	return 2, m.err
}

func (m *mockApp) InvalidateJob(_ context.Context, name string) (int64, error) {
	m.calls = append(m.calls, "invalidate-job")
	m.invalidatedJob = name
	return 1, m.err
}

func (m *mockApp) SweepCache(context.Context) (int64, error) {
	m.calls = append(m.calls, "sweep")
	return 0, m.err
}

func (m *mockApp) EvictCache(_ context.Context, keep int) (int64, error) {
	m.calls = append(m.calls, "evict")
	m.evictKeep = keep
	return 4, m.err
}

func execute(t *testing.T, a commands.Application, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cli := commands.New(a)
	cli.SetArgs(args)
	out := new(bytes.Buffer)
	cli.SetOutput(out, out)
	err := cli.Execute(context.Background())
	return out.String(), err
}

func sampleReport() *app.RunReport {
	return &app.RunReport{Jobs: []app.JobOutcome{
		{Name: "summarize", State: domain.StateCompleted, Attempts: 1, Cached: true,
			Result: domain.JobResult{Stdout: "summary"}},
		{Name: "aggregate", State: domain.StateFailed, Attempts: 3, Err: errors.New("command failed")},
	}}
}

func TestCommands_Run(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var capturedOpts app.RunOptions
		var capturedJobfile string

		mock := &mockApp{
			runFunc: func(_ context.Context, jobfile string, opts app.RunOptions) (*app.RunReport, error) {
				capturedOpts = opts
				capturedJobfile = jobfile
				return &app.RunReport{}, nil
			},
		}

		_, err := execute(t, mock, "run", "jobs.yaml", "--no-cache", "-j", "4")
		require.NoError(t, err)
		assert.True(t, capturedOpts.NoCache)
		assert.Equal(t, 4, capturedOpts.MaxConcurrency)
		assert.Equal(t, "jobs.yaml", capturedJobfile)
	})

	t.Run("renders report and returns error on failure", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(context.Context, string, app.RunOptions) (*app.RunReport, error) {
				return sampleReport(), domain.ErrBatchFailed
			},
		}

		out, err := execute(t, mock, "run", "jobs.yaml")
		require.ErrorIs(t, err, domain.ErrBatchFailed)
		assert.Contains(t, out, "summarize")
		assert.Contains(t, out, "Failed")
		assert.Contains(t, out, "command failed")
		assert.Contains(t, out, "2 jobs, 1 cached, 1 failed")
		assert.NotContains(t, out, "==> summarize")
	})

	t.Run("shows output when asked", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(context.Context, string, app.RunOptions) (*app.RunReport, error) {
				return sampleReport(), nil
			},
		}

		out, err := execute(t, mock, "run", "jobs.yaml", "--show-output")
		require.NoError(t, err)
		assert.Contains(t, out, "==> summarize\nsummary\n")
		assert.NotContains(t, out, "==> aggregate")
	})

	t.Run("shows usage when no jobfile provided", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(context.Context, string, app.RunOptions) (*app.RunReport, error) {
				panic("should not be called")
			},
		}

		out, err := execute(t, mock, "run")
		require.NoError(t, err)
		assert.Contains(t, out, "Usage:")
	})
}

func TestCommands_Cache(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		mock := &mockApp{stats: domain.CacheStats{
			Entries: 5, Expired: 1, PayloadBytes: 2048,
			Oldest: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		}}

		out, err := execute(t, mock, "cache", "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "2048")
		assert.Contains(t, out, "2026-04-01T08:00:00Z")
		assert.Contains(t, out, "-")
	})

	t.Run("clear", func(t *testing.T) {
		mock := &mockApp{}
		out, err := execute(t, mock, "cache", "clear")
		require.NoError(t, err)
		assert.Equal(t, "removed 3 cache entries\n", out)
	})

	t.Run("invalidate prefix", func(t *testing.T) {
		mock := &mockApp{}
		_, err := execute(t, mock, "cache", "invalidate", "summarize:")
		require.NoError(t, err)
		assert.Equal(t, "summarize:", mock.invalidated)
	})

	t.Run("invalidate job", func(t *testing.T) {
		mock := &mockApp{}
		_, err := execute(t, mock, "cache", "invalidate", "--job", "summarize")
		require.NoError(t, err)
		assert.Equal(t, "summarize", mock.invalidatedJob)
		assert.Equal(t, []string{"invalidate-job"}, mock.calls)
	})

	t.Run("sweep", func(t *testing.T) {
		mock := &mockApp{}
		out, err := execute(t, mock, "cache", "sweep")
		require.NoError(t, err)
		assert.Equal(t, "removed 0 cache entries\n", out)
	})

	t.Run("evict", func(t *testing.T) {
		mock := &mockApp{}
		_, err := execute(t, mock, "cache", "evict", "10")
		require.NoError(t, err)
		assert.Equal(t, 10, mock.evictKeep)
	})

	t.Run("evict rejects non-numeric keep", func(t *testing.T) {
		mock := &mockApp{}
		_, err := execute(t, mock, "cache", "evict", "ten")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid keep count")
		assert.Empty(t, mock.calls)
	})

	t.Run("propagates app errors", func(t *testing.T) {
		mock := &mockApp{err: domain.ErrStoreUnavailable}
		_, err := execute(t, mock, "cache", "clear")
		require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestCommands_Version(t *testing.T) {
	out, err := execute(t, &mockApp{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "stanza version "+build.Version+" (commit: "+build.Commit+", date: "+build.Date+")\n", out)
}
