package domain

import (
	"errors"
	"strconv"

	"go.trai.ch/zerr"
)

var (
	// ErrTransient marks an operation failure that may succeed when retried.
	ErrTransient = zerr.New("transient operation failure")

	// ErrFatal marks an operation failure that must never be retried.
	ErrFatal = zerr.New("fatal operation failure")

	// ErrCancelled is returned when an operation was cancelled before or while it ran.
	ErrCancelled = zerr.New("operation cancelled")

	// ErrRetriesExhausted is returned when an operation kept failing after its last retry.
	ErrRetriesExhausted = zerr.New("retries exhausted")

	// ErrAwaitInterrupted is returned when waiting for a batch ended early because its context expired.
	ErrAwaitInterrupted = zerr.New("await interrupted")

	// ErrOperationPanicked is returned when an operation panicked while running.
	ErrOperationPanicked = zerr.New("operation panicked")

	// ErrInvalidPolicy is returned when a retry policy violates its bounds.
	ErrInvalidPolicy = zerr.New("invalid retry policy")

	// ErrInvalidConcurrency is returned when an executor is configured with fewer than one slot.
	ErrInvalidConcurrency = zerr.New("max concurrency must be at least 1")

	// ErrCacheCorruption is returned when a cached payload cannot be decoded.
	ErrCacheCorruption = zerr.New("cache entry corrupted")

	// ErrStoreUnavailable is returned when the durable cache store cannot be read or written.
	ErrStoreUnavailable = zerr.New("cache store unavailable")

	// ErrStoreOpenFailed is returned when the cache database cannot be opened.
	ErrStoreOpenFailed = zerr.New("failed to open cache store")

	// ErrStoreMigrationFailed is returned when the cache schema cannot be applied.
	ErrStoreMigrationFailed = zerr.New("failed to migrate cache store")

	// ErrStoreCreateFailed is returned when the cache store directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create cache store directory")

	// ErrEncodeFailed is returned when a value cannot be serialized for caching.
	ErrEncodeFailed = zerr.New("failed to encode cache payload")

	// ErrUnsupportedParam is returned when a key parameter has a type that cannot be fingerprinted.
	ErrUnsupportedParam = zerr.New("unsupported key parameter type")

	// ErrEmptyKey is returned when a cache operation is given an empty key.
	ErrEmptyKey = zerr.New("cache key is empty")

	// ErrInvalidKeep is returned when eviction is asked to keep a negative number of entries.
	ErrInvalidKeep = zerr.New("eviction limit must not be negative")

	// ErrResourceNotFound is returned when a scoped resource is requested but was never registered.
	ErrResourceNotFound = zerr.New("resource not found")

	// ErrCleanupFailed is returned when one or more scope cleanup callbacks fail.
	ErrCleanupFailed = zerr.New("scope cleanup failed")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigInvalid is returned when the loaded configuration fails validation.
	ErrConfigInvalid = zerr.New("invalid configuration")

	// ErrJobfileInvalid is returned when a jobfile fails validation.
	ErrJobfileInvalid = zerr.New("invalid jobfile")

	// ErrDuplicateJobName is returned when two jobs in a jobfile share a name.
	ErrDuplicateJobName = zerr.New("duplicate job name")

	// ErrReservedParam is returned when a job declares a param whose name is reserved for derived key params.
	ErrReservedParam = zerr.New("param name is reserved")

	// ErrInputNotFound is returned when a job input pattern matches no file.
	ErrInputNotFound = zerr.New("input not found")

	// ErrInputHashFailed is returned when a job input cannot be read for fingerprinting.
	ErrInputHashFailed = zerr.New("failed to hash job input")

	// ErrCommandFailed is returned when a shell command exits unsuccessfully.
	ErrCommandFailed = zerr.New("command failed")

	// ErrBatchFailed is returned by the CLI when at least one job of a batch failed.
	ErrBatchFailed = zerr.New("one or more jobs failed")
)

// kindError tags an error with a kind sentinel while keeping its own message.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

// Transient marks err as retryable. It returns nil for a nil error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: ErrTransient, err: err}
}

// Fatal marks err as never retryable. It returns nil for a nil error.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: ErrFatal, err: err}
}

// Cancelled marks err as a cancellation. It returns nil for a nil error.
func Cancelled(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	return &kindError{kind: ErrCancelled, err: err}
}

// Exhausted reports that err was the last failure of an operation that used up its retries.
func Exhausted(err error, attempts int) error {
	return &AttemptError{
		Attempts: attempts,
		Err:      &kindError{kind: ErrRetriesExhausted, err: err},
	}
}

// AttemptError carries the number of attempts an operation consumed before it failed.
type AttemptError struct {
	Attempts int
	Err      error
}

func (e *AttemptError) Error() string {
	return e.Err.Error() + " (after " + strconv.Itoa(e.Attempts) + " attempts)"
}

func (e *AttemptError) Unwrap() error { return e.Err }

// Attempts reports the attempt count recorded on err, or 0 if none was recorded.
func Attempts(err error) int {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Attempts
	}
	return 0
}
