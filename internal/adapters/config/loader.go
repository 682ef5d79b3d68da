// Package config provides the configuration and jobfile loader for stanza.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by the loader.
const EnvPrefix = "STANZA_"

var validJobNameRegex = regexp.MustCompile("^[a-zA-Z0-9_.-]+$")

// Loader implements ports.ConfigLoader using YAML files and the environment.
type Loader struct {
	Logger ports.Logger
	// Environment replaces the process environment when non-nil.
	Environment map[string]string

	validate *validator.Validate
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Job names become cache key prefixes, so they must not contain the separator.
	_ = v.RegisterValidation("jobname", func(fl validator.FieldLevel) bool {
		return validJobNameRegex.MatchString(fl.Field().String())
	})
	return &Loader{Logger: logger, validate: v}
}

// Load reads stanza.yaml from cwd, applies STANZA_ environment overrides and validates the result.
// A missing file is not an error: defaults and the environment still apply.
func (l *Loader) Load(cwd string) (*domain.Config, error) {
	file := fromDomain(domain.DefaultConfig())

	path := filepath.Join(cwd, domain.ConfigFileName)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		l.Logger.Debug("no config file found, using defaults", "path", path)
	} else if err := readAndUnmarshalYAML(path, &file); err != nil {
		return nil, err
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: l.Environment}
	if err := env.ParseWithOptions(&file, opts); err != nil {
		return nil, zerr.Wrap(err, domain.ErrConfigInvalid.Error())
	}

	if err := l.validate.Struct(&file); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigInvalid.Error()), "path", path)
	}

	cfg := file.toDomain()
	if !filepath.IsAbs(cfg.Cache.Path) {
		cfg.Cache.Path = filepath.Join(cwd, cfg.Cache.Path)
	}
	return cfg, nil
}

func readAndUnmarshalYAML(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", path)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "path", path)
	}
	return nil
}

func fromDomain(cfg *domain.Config) Stanzafile {
	file := Stanzafile{
		Executor: ExecutorDTO{
			MaxConcurrency: cfg.Executor.MaxConcurrency,
			RateLimit:      RateLimitDTO{QPS: cfg.Executor.QPS, Burst: cfg.Executor.Burst},
		},
		Retry: RetryDTO{
			MaxRetries:        cfg.Retry.MaxRetries,
			InitialDelay:      cfg.Retry.InitialDelay,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		},
		Cache: CacheDTO{Path: cfg.Cache.Path, MaxEntries: cfg.Cache.MaxEntries},
		Log:   LogDTO{Format: cfg.Log.Format, Level: cfg.Log.Level},
	}
	if cfg.Cache.DefaultTTL != nil {
		file.Cache.DefaultTTL = *cfg.Cache.DefaultTTL
	}
	return file
}

func (f *Stanzafile) toDomain() *domain.Config {
	cfg := &domain.Config{
		Executor: domain.ExecutorSettings{
			MaxConcurrency: f.Executor.MaxConcurrency,
			QPS:            f.Executor.RateLimit.QPS,
			Burst:          f.Executor.RateLimit.Burst,
		},
		Retry: domain.RetryPolicy{
			MaxRetries:        f.Retry.MaxRetries,
			InitialDelay:      f.Retry.InitialDelay,
			BackoffMultiplier: f.Retry.BackoffMultiplier,
		},
		Cache: domain.CacheSettings{
			Path:       f.Cache.Path,
			MaxEntries: f.Cache.MaxEntries,
		},
		Log: domain.LogSettings{Format: f.Log.Format, Level: f.Log.Level},
	}
	if f.Cache.DefaultTTL > 0 {
		cfg.Cache.DefaultTTL = domain.TTL(f.Cache.DefaultTTL)
	}
	return cfg
}
