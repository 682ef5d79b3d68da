package retry_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports/mocks"
	"go.trai.ch/stanza/internal/engine/retry"
	"go.uber.org/mock/gomock"
)

func newRunner(t *testing.T) (*retry.Runner, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	return retry.NewRunner(log), log
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	r, _ := newRunner(t)

	val, attempts, err := r.Run(context.Background(), "op", func(context.Context) (any, error) {
		return 42, nil
	}, domain.DefaultRetryPolicy())

	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 1, attempts)
}

func TestRun_AlwaysTransientMakesMaxRetriesPlusOneAttempts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r, _ := newRunner(t)
		policy := domain.RetryPolicy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, BackoffMultiplier: 2}

		var starts []time.Time
		op := func(context.Context) (any, error) {
			starts = append(starts, time.Now())
			return nil, domain.Transient(errors.New("503"))
		}

		_, attempts, err := r.Run(context.Background(), "flaky", op, policy)

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrRetriesExhausted)
		assert.ErrorIs(t, err, domain.ErrTransient)
		assert.Equal(t, 4, attempts)
		assert.Equal(t, 4, domain.Attempts(err))
		require.Len(t, starts, 4)

		want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
		for i, d := range want {
			assert.Equal(t, d, starts[i+1].Sub(starts[i]), "gap before attempt %d", i+2)
		}
	})
}

func TestRun_SucceedsAfterTransientFailures(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r, _ := newRunner(t)
		calls := 0

		val, attempts, err := r.Run(context.Background(), "flaky", func(context.Context) (any, error) {
			calls++
			if calls < 3 {
				return nil, domain.Transient(errors.New("timeout"))
			}
			return "ok", nil
		}, domain.DefaultRetryPolicy())

		require.NoError(t, err)
		assert.Equal(t, "ok", val)
		assert.Equal(t, 3, attempts)
	})
}

func TestRun_FatalIsNotRetried(t *testing.T) {
	r, _ := newRunner(t)
	calls := 0
	boom := domain.Fatal(errors.New("bad request"))

	_, attempts, err := r.Run(context.Background(), "op", func(context.Context) (any, error) {
		calls++
		return nil, boom
	}, domain.DefaultRetryPolicy())

	require.ErrorIs(t, err, domain.ErrFatal)
	assert.NotErrorIs(t, err, domain.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestRun_UntaggedErrorIsNotRetriedByDefault(t *testing.T) {
	r, _ := newRunner(t)
	calls := 0

	_, _, err := r.Run(context.Background(), "op", func(context.Context) (any, error) {
		calls++
		return nil, errors.New("plain")
	}, domain.DefaultRetryPolicy())

	require.EqualError(t, err, "plain")
	assert.Equal(t, 1, calls)
}

func TestRun_CustomRetryOn(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r, _ := newRunner(t)
		errThrottled := errors.New("throttled")
		policy := domain.RetryPolicy{
			MaxRetries:        1,
			InitialDelay:      time.Second,
			BackoffMultiplier: 1,
			RetryOn:           []error{errThrottled},
		}
		calls := 0

		_, attempts, err := r.Run(context.Background(), "op", func(context.Context) (any, error) {
			calls++
			return nil, errThrottled
		}, policy)

		require.ErrorIs(t, err, domain.ErrRetriesExhausted)
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 2, calls)
	})
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r, _ := newRunner(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		calls := 0
		done := make(chan error, 1)
		go func() {
			_, _, err := r.Run(ctx, "op", func(context.Context) (any, error) {
				calls++
				return nil, domain.Transient(errors.New("503"))
			}, domain.RetryPolicy{MaxRetries: 5, InitialDelay: time.Minute, BackoffMultiplier: 2})
			done <- err
		}()

		synctest.Wait()
		cancel()

		err := <-done
		require.ErrorIs(t, err, domain.ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	r, _ := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, attempts, err := r.Run(ctx, "op", func(context.Context) (any, error) {
		called = true
		return nil, nil
	}, domain.DefaultRetryPolicy())

	require.ErrorIs(t, err, domain.ErrCancelled)
	assert.False(t, called)
	assert.Equal(t, 0, attempts)
}

func TestRun_OperationReportsCancellation(t *testing.T) {
	r, _ := newRunner(t)
	calls := 0

	_, _, err := r.Run(context.Background(), "op", func(context.Context) (any, error) {
		calls++
		return nil, domain.ErrCancelled
	}, domain.DefaultRetryPolicy())

	require.ErrorIs(t, err, domain.ErrCancelled)
	assert.Equal(t, 1, calls)
}

func TestRun_DeadlineExpiryIsCancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		r, _ := newRunner(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, attempts, err := r.Run(ctx, "op", func(context.Context) (any, error) {
			return nil, domain.Transient(errors.New("503"))
		}, domain.RetryPolicy{MaxRetries: 10, InitialDelay: 2 * time.Second, BackoffMultiplier: 2})

		require.ErrorIs(t, err, domain.ErrCancelled)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		// Attempts at t=0 and t=2s; the next retry would start at t=6s.
		assert.Equal(t, 2, attempts)
	})
}

func TestRun_InvalidPolicy(t *testing.T) {
	r, _ := newRunner(t)

	_, attempts, err := r.Run(context.Background(), "op", func(context.Context) (any, error) {
		return nil, nil
	}, domain.RetryPolicy{MaxRetries: -1, InitialDelay: time.Second, BackoffMultiplier: 1})

	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrInvalidPolicy.Error())
	assert.Equal(t, 0, attempts)
}

func TestRun_LogsOneRecordPerRetryAndTerminalOutcome(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		log := mocks.NewMockLogger(ctrl)
		r := retry.NewRunner(log)

		gomock.InOrder(
			log.EXPECT().Debug("attempt started", "operation", "op", "attempt", 1),
			log.EXPECT().Info("attempt failed, retrying", "operation", "op", "attempt", 1,
				"delay", time.Second, "error", "503"),
			log.EXPECT().Debug("attempt started", "operation", "op", "attempt", 2),
			log.EXPECT().Info("attempt failed, retrying", "operation", "op", "attempt", 2,
				"delay", 2*time.Second, "error", "503"),
			log.EXPECT().Debug("attempt started", "operation", "op", "attempt", 3),
			log.EXPECT().Warn("operation failed", "operation", "op", "attempts", 3,
				"outcome", "exhausted", "error", "503"),
		)

		_, _, err := r.Run(context.Background(), "op", func(context.Context) (any, error) {
			return nil, domain.Transient(errors.New("503"))
		}, domain.RetryPolicy{MaxRetries: 2, InitialDelay: time.Second, BackoffMultiplier: 2})

		require.Error(t, err)
	})
}

func TestRun_LogsAttemptRecordWithoutRetries(t *testing.T) {
	tests := []struct {
		name   string
		op     retry.Operation
		expect func(log *mocks.MockLoggerMockRecorder) *gomock.Call
	}{
		{
			name: "first attempt succeeds",
			op:   func(context.Context) (any, error) { return 1, nil },
			expect: func(log *mocks.MockLoggerMockRecorder) *gomock.Call {
				return log.Debug("operation finished", "operation", "op", "attempts", 1, "outcome", "success")
			},
		},
		{
			name: "fatal failure",
			op:   func(context.Context) (any, error) { return nil, domain.Fatal(errors.New("boom")) },
			expect: func(log *mocks.MockLoggerMockRecorder) *gomock.Call {
				return log.Warn("operation failed", "operation", "op", "attempts", 1, "outcome", "fatal", "error", "boom")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			log := mocks.NewMockLogger(ctrl)
			gomock.InOrder(
				log.EXPECT().Debug("attempt started", "operation", "op", "attempt", 1),
				tt.expect(log.EXPECT()),
			)

			_, attempts, _ := retry.NewRunner(log).Run(context.Background(), "op", tt.op, domain.DefaultRetryPolicy())
			assert.Equal(t, 1, attempts)
		})
	}
}
