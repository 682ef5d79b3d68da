package config

import "time"

// Stanzafile represents the structure of the stanza.yaml configuration file.
// Every field can be overridden by a STANZA_ environment variable.
type Stanzafile struct {
	Executor ExecutorDTO `yaml:"executor" envPrefix:"EXECUTOR_"`
	Retry    RetryDTO    `yaml:"retry"    envPrefix:"RETRY_"`
	Cache    CacheDTO    `yaml:"cache"    envPrefix:"CACHE_"`
	Log      LogDTO      `yaml:"log"      envPrefix:"LOG_"`
}

// ExecutorDTO represents the executor section of the configuration.
type ExecutorDTO struct {
	MaxConcurrency int          `yaml:"max_concurrency" env:"MAX_CONCURRENCY" validate:"gte=1"`
	RateLimit      RateLimitDTO `yaml:"rate_limit"      envPrefix:"RATE_LIMIT_"`
}

// RateLimitDTO represents the admission rate limit of the executor.
type RateLimitDTO struct {
	QPS   float64 `yaml:"qps"   env:"QPS"   validate:"gte=0"`
	Burst int     `yaml:"burst" env:"BURST" validate:"gte=0"`
}

// RetryDTO represents the default retry policy.
type RetryDTO struct {
	MaxRetries        int           `yaml:"max_retries"        env:"MAX_RETRIES"        validate:"gte=0"`
	InitialDelay      time.Duration `yaml:"initial_delay"      env:"INITIAL_DELAY"      validate:"gt=0"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER" validate:"gte=1"`
}

// CacheDTO represents the cache section of the configuration.
type CacheDTO struct {
	Path       string        `yaml:"path"        env:"PATH"        validate:"required"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL" validate:"gte=0"`
	MaxEntries int           `yaml:"max_entries" env:"MAX_ENTRIES" validate:"gte=0"`
}

// LogDTO represents the log section of the configuration.
type LogDTO struct {
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=text json"`
	Level  string `yaml:"level"  env:"LEVEL"  validate:"oneof=debug info warn error"`
}

// Jobfile represents the structure of a jobfile passed to stanza run.
type Jobfile struct {
	Jobs []JobDTO `yaml:"jobs" validate:"required,min=1,dive"`
}

// JobDTO represents a single job definition in a jobfile.
type JobDTO struct {
	Name        string            `yaml:"name"      validate:"required,jobname"`
	Cmd         []string          `yaml:"cmd"       validate:"required,min=1,dive,required"`
	Partition   string            `yaml:"partition"`
	Params      map[string]string `yaml:"params"`
	Environment map[string]string `yaml:"env"`
	WorkingDir  string            `yaml:"dir"`
	Inputs      []string          `yaml:"inputs"    validate:"omitempty,dive,required"`
	TTL         *time.Duration    `yaml:"ttl"       validate:"omitempty,gt=0"`
	Retries     *int              `yaml:"retries"   validate:"omitempty,gte=0"`
	NoCache     bool              `yaml:"no_cache"`
}
