// Package retry runs operations under a retry policy with exponential backoff.
package retry

import (
	"context"
	"time"

	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
)

// Operation is a unit of work. The context is its cancellation signal.
type Operation func(ctx context.Context) (any, error)

const (
	outcomeSuccess   = "success"
	outcomeExhausted = "exhausted"
	outcomeCancelled = "cancelled"
	outcomeFatal     = "fatal"
)

// Runner executes operations, retrying the failures its policy allows.
type Runner struct {
	logger ports.Logger
}

// NewRunner creates a new Runner.
func NewRunner(logger ports.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run calls op until it succeeds, fails with a non-retryable error, runs out of
// retries, or ctx is cancelled. It returns the value, the number of attempts made
// and the final error.
//
// Retries sleep for policy.Delay(n) in the calling goroutine. Cancellation aborts
// both the sleep and any further attempt and is reported as domain.ErrCancelled.
// Running out of retries returns the last error wrapped by domain.Exhausted.
func (r *Runner) Run(ctx context.Context, name string, op Operation, policy domain.RetryPolicy) (any, int, error) {
	if err := policy.Validate(); err != nil {
		return nil, 0, err
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return r.cancelled(name, attempts, err)
		}

		attempts++
		r.logger.Debug("attempt started", "operation", name, "attempt", attempts)
		val, err := op(ctx)
		if err == nil {
			r.logger.Debug("operation finished", "operation", name, "attempts", attempts, "outcome", outcomeSuccess)
			return val, attempts, nil
		}

		if ctx.Err() != nil || domain.IsCancellation(err) {
			return r.cancelled(name, attempts, err)
		}

		if !policy.Retryable(err) {
			r.logger.Warn("operation failed", "operation", name, "attempts", attempts,
				"outcome", outcomeFatal, "error", err.Error())
			return nil, attempts, err
		}

		if attempts > policy.MaxRetries {
			r.logger.Warn("operation failed", "operation", name, "attempts", attempts,
				"outcome", outcomeExhausted, "error", err.Error())
			return nil, attempts, domain.Exhausted(err, attempts)
		}

		delay := policy.Delay(attempts - 1)
		r.logger.Info("attempt failed, retrying", "operation", name, "attempt", attempts,
			"delay", delay, "error", err.Error())

		if err := sleep(ctx, delay); err != nil {
			return r.cancelled(name, attempts, err)
		}
	}
}

func (r *Runner) cancelled(name string, attempts int, cause error) (any, int, error) {
	r.logger.Info("operation cancelled", "operation", name, "attempts", attempts, "outcome", outcomeCancelled)
	return nil, attempts, domain.Cancelled(cause)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
