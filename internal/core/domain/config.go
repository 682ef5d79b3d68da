package domain

import (
	"runtime"
	"time"
)

const (
	// LogFormatText renders human-readable log lines.
	LogFormatText = "text"
	// LogFormatJSON renders one JSON object per log record.
	LogFormatJSON = "json"
)

// ExecutorSettings configures the bounded executor.
type ExecutorSettings struct {
	// MaxConcurrency is the number of operations allowed to run at once.
	MaxConcurrency int
	// QPS caps how many operations are admitted per second. Zero disables the limit.
	QPS float64
	// Burst is the number of admissions allowed at once under the QPS limit.
	Burst int
}

// CacheSettings configures the fingerprint cache.
type CacheSettings struct {
	// Path is the location of the SQLite database file.
	Path string
	// DefaultTTL applies to writes that do not name their own TTL. Nil means forever.
	DefaultTTL *time.Duration
	// MaxEntries bounds the number of entries kept by eviction. Zero means unbounded.
	MaxEntries int
}

// LogSettings configures the structured logger.
type LogSettings struct {
	Format string
	Level  string
}

// Config is the resolved runtime configuration.
type Config struct {
	Executor ExecutorSettings
	Retry    RetryPolicy
	Cache    CacheSettings
	Log      LogSettings
}

// DefaultConfig returns the configuration used when no file or environment overrides exist.
func DefaultConfig() *Config {
	return &Config{
		Executor: ExecutorSettings{
			MaxConcurrency: runtime.NumCPU(),
		},
		Retry: DefaultRetryPolicy(),
		Cache: CacheSettings{
			Path: DefaultCachePath(),
		},
		Log: LogSettings{
			Format: LogFormatText,
			Level:  "info",
		},
	}
}
