// Package app implements the application layer for stanza.
package app

import (
	"bytes"
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"go.trai.ch/stanza/internal/adapters/telemetry"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/stanza/internal/engine/cache"
	"go.trai.ch/stanza/internal/engine/executor"
	"go.trai.ch/stanza/internal/engine/group"
	"go.trai.ch/stanza/internal/engine/memo"
	"go.trai.ch/stanza/internal/engine/retry"
	"go.trai.ch/zerr"
)

// configurable is implemented by loggers whose output can follow the loaded configuration.
type configurable interface {
	Configure(settings domain.LogSettings)
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	runner       ports.CommandRunner
	hasher       ports.InputHasher
	opener       ports.StoreOpener
	tracer       ports.Tracer
	logger       ports.Logger
	retrier      *retry.Runner
	clock        clockwork.Clock
	workDir      string
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	runner ports.CommandRunner,
	hasher ports.InputHasher,
	opener ports.StoreOpener,
	tracer ports.Tracer,
	log ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		runner:       runner,
		hasher:       hasher,
		opener:       opener,
		tracer:       tracer,
		logger:       log,
		retrier:      retry.NewRunner(log),
		clock:        clockwork.NewRealClock(),
		workDir:      ".",
	}
}

// WithRetryRunner replaces the runner that retries failing jobs.
func (a *App) WithRetryRunner(r *retry.Runner) *App {
	a.retrier = r
	return a
}

// WithClock replaces the clock used for cache timestamps.
func (a *App) WithClock(clock clockwork.Clock) *App {
	a.clock = clock
	return a
}

// WithWorkDir sets the directory the configuration is loaded from.
func (a *App) WithWorkDir(dir string) *App {
	a.workDir = dir
	return a
}

// RunOptions configuration for the Run method.
type RunOptions struct {
	// NoCache runs every job and stores none of their results.
	NoCache bool
	// MaxConcurrency overrides the configured executor slots when positive.
	MaxConcurrency int
}

// Run executes the jobs of the jobfile on a bounded executor, serving
// unchanged jobs from the cache.
//
// The returned report lists every job in declaration order, even on error.
// When any job did not complete the error wraps domain.ErrBatchFailed.
func (a *App) Run(ctx context.Context, jobfile string, opts RunOptions) (*RunReport, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.MaxConcurrency > 0 {
		cfg.Executor.MaxConcurrency = opts.MaxConcurrency
	}

	jobs, err := a.configLoader.LoadJobs(jobfile, cfg.Retry)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load jobfile")
	}
	if err := a.fingerprintInputs(jobs, opts.NoCache); err != nil {
		return nil, err
	}

	shutdown := telemetry.Setup(a.logger)
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	factory, err := executor.NewFactory(
		executor.ConfigFrom(cfg.Executor),
		a.retrier,
		a.logger,
		a.tracer,
	)
	if err != nil {
		return nil, err
	}

	store, err := a.opener.Open(ctx, cfg.Cache.Path)
	if err != nil {
		return nil, err
	}
	c := a.newCache(store, cfg)
	memoizer := memo.New(c, a.logger)

	a.logger.Info("running jobs", "jobs", len(jobs), "max_concurrency", cfg.Executor.MaxConcurrency)

	handles := make([]*executor.Handle, 0, len(jobs))
	_, runErr := group.Run(ctx, factory, func(g *group.Group) error {
		g.RegisterCleanup(func(ctx context.Context) error {
			_, _, err := c.Maintain(ctx)
			return err
		})
		g.RegisterCloser("cache store", store)

		for i := range jobs {
			job := &jobs[i]
			req := memo.Request{
				Operation: job.Name,
				Partition: job.Partition,
				Params:    job.KeyParams(),
				TTL:       job.TTL,
				NoCache:   opts.NoCache || job.NoCache,
			}
			handles = append(handles, memo.Submit(memoizer, g, req, job.Policy, a.compute(job)))
		}
		return nil
	})

	report := buildRunReport(jobs, handles)
	if failed := report.Failed(); failed > 0 {
		a.logger.Warn("jobs did not complete", "failed", failed, "jobs", len(jobs))
		return report, errors.Join(domain.ErrBatchFailed, runErr)
	}
	if runErr != nil {
		return report, runErr
	}
	a.logger.Info("all jobs completed", "jobs", len(jobs), "cached", report.Cached())
	return report, nil
}

// compute returns the computation of one job: running its command and capturing its output.
func (a *App) compute(job *domain.Job) func(context.Context) (domain.JobResult, error) {
	return func(ctx context.Context) (domain.JobResult, error) {
		var stdout, stderr bytes.Buffer
		if err := a.runner.Run(ctx, job, &stdout, &stderr); err != nil {
			return domain.JobResult{}, err
		}
		return domain.JobResult{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Finished: a.clock.Now(),
		}, nil
	}
}

// fingerprintInputs records the digest of each cached job's input files so
// that editing an input changes the job's cache key.
func (a *App) fingerprintInputs(jobs []domain.Job, noCache bool) error {
	for i := range jobs {
		job := &jobs[i]
		if len(job.Inputs) == 0 || noCache || job.NoCache {
			continue
		}
		digest, err := a.hasher.HashInputs(job.Inputs)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to fingerprint job inputs"), "job", job.Name)
		}
		job.InputDigest = digest
		a.logger.Debug("fingerprinted job inputs", "job", job.Name, "digest", digest)
	}
	return nil
}

func (a *App) loadConfig() (*domain.Config, error) {
	cfg, err := a.configLoader.Load(a.workDir)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	if l, ok := a.logger.(configurable); ok {
		l.Configure(cfg.Log)
	}
	return cfg, nil
}

func (a *App) newCache(store ports.EntryStore, cfg *domain.Config) *cache.Cache {
	return cache.New(store, a.clock, a.logger,
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	)
}
