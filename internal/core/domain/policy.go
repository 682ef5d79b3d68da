package domain

import (
	"errors"
	"time"

	"go.trai.ch/zerr"
)

const (
	// DefaultMaxRetries is the number of retries used when none is configured.
	DefaultMaxRetries = 3
	// DefaultInitialDelay is the delay before the first retry.
	DefaultInitialDelay = time.Second
	// DefaultBackoffMultiplier grows the delay between consecutive retries.
	DefaultBackoffMultiplier = 2.0
)

// RetryPolicy describes how a failing operation is retried.
// It is a value type and is never mutated once built.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// BackoffMultiplier scales the delay after every retry.
	BackoffMultiplier float64
	// RetryOn lists the error kinds that are retried, matched with errors.Is.
	// An empty list means ErrTransient.
	RetryOn []error
}

// DefaultRetryPolicy returns the policy used when the caller supplies none.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        DefaultMaxRetries,
		InitialDelay:      DefaultInitialDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// NoRetry returns a policy that runs an operation exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{InitialDelay: time.Millisecond, BackoffMultiplier: 1}
}

// Validate reports whether the policy is within its bounds.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return zerr.With(ErrInvalidPolicy, "max_retries", p.MaxRetries)
	case p.InitialDelay <= 0:
		return zerr.With(ErrInvalidPolicy, "initial_delay", p.InitialDelay.String())
	case p.BackoffMultiplier < 1:
		return zerr.With(ErrInvalidPolicy, "backoff_multiplier", p.BackoffMultiplier)
	}
	return nil
}

// Retryable reports whether err belongs to one of the policy's retryable kinds.
// Cancellation is never retryable, whatever the policy says.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil || IsCancellation(err) {
		return false
	}
	if len(p.RetryOn) == 0 {
		return errors.Is(err, ErrTransient)
	}
	for _, kind := range p.RetryOn {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Delay returns the wait before retry number n (0-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.InitialDelay)
	for range n {
		d *= p.BackoffMultiplier
	}
	return time.Duration(d)
}
