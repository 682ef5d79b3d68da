// Package executor runs operations under a concurrency limit with FIFO admission.
package executor

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/stanza/internal/engine/retry"
	"go.trai.ch/zerr"
	"golang.org/x/time/rate"
)

// OperationFunc is the body of a submitted operation.
type OperationFunc = retry.Operation

// Config bounds how operations are admitted.
type Config struct {
	// MaxConcurrency is the number of operations allowed to run at once.
	MaxConcurrency int
	// QPS caps admissions per second. Zero disables the limit.
	QPS float64
	// Burst is the token bucket size used with QPS. Values below 1 are treated as 1.
	Burst int
}

// ConfigFrom converts the executor settings of a loaded configuration.
func ConfigFrom(s domain.ExecutorSettings) Config {
	return Config{MaxConcurrency: s.MaxConcurrency, QPS: s.QPS, Burst: s.Burst}
}

// Validate reports whether the configuration can build an executor.
func (c Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return zerr.With(domain.ErrInvalidConcurrency, "max_concurrency", c.MaxConcurrency)
	}
	return nil
}

// Executor admits submitted operations in FIFO order while at most
// MaxConcurrency of them run, and runs each through the retry runner.
type Executor struct {
	runner  *retry.Runner
	logger  ports.Logger
	tracer  ports.Tracer
	limiter *rate.Limiter
	limit   int

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	seq       uint64
	queue     []*Handle
	handles   []*Handle
	active    int
	cancelled bool
}

// New creates a new Executor.
func New(cfg Config, runner *retry.Runner, logger ports.Logger, tracer ports.Tracer) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		runner: runner,
		logger: logger,
		tracer: tracer,
		limit:  cfg.MaxConcurrency,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.QPS > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), max(cfg.Burst, 1))
	}
	return e, nil
}

// Submit queues op and returns its handle without blocking.
// Once the executor is cancelled, the handle resolves to Cancelled immediately.
func (e *Executor) Submit(name string, op OperationFunc, policy domain.RetryPolicy) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	h := newHandle(e.ctx, e.seq, name, op, policy)
	e.handles = append(e.handles, h)

	if e.cancelled {
		h.resolve(nil, 0, domain.ErrCancelled)
		return h
	}

	e.queue = append(e.queue, h)
	e.dispatchLocked()
	return h
}

// dispatchLocked starts queued operations while slots are free. Callers hold mu.
func (e *Executor) dispatchLocked() {
	for len(e.queue) > 0 && e.active < e.limit && !e.cancelled {
		h := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]

		if !h.start() {
			continue
		}
		e.active++
		go e.execute(h)
	}
}

func (e *Executor) execute(h *Handle) {
	var (
		val      any
		attempts int
		err      error
	)

	defer func() {
		e.mu.Lock()
		e.active--
		e.dispatchLocked()
		e.mu.Unlock()

		h.resolve(val, attempts, err)
	}()

	ctx, span := e.tracer.Start(h.ctx, h.name)
	defer span.End()
	span.SetAttribute("seq", int64(h.seq)) //nolint:gosec // sequence numbers stay far below MaxInt64

	if e.limiter != nil {
		if werr := e.limiter.Wait(ctx); werr != nil {
			err = domain.Cancelled(werr)
			span.RecordError(err)
			return
		}
	}

	val, attempts, err = e.runGuarded(ctx, h)
	span.SetAttribute("attempts", attempts)
	if err != nil {
		span.RecordError(err)
	}
}

// runGuarded runs the operation, converting a panic into a fatal failure.
func (e *Executor) runGuarded(ctx context.Context, h *Handle) (val any, attempts int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Fatal(zerr.With(domain.ErrOperationPanicked, "panic", fmt.Sprint(r)))
			attempts = max(attempts, 1)
			e.logger.Error(err, "operation", h.name, "seq", h.seq)
		}
	}()
	return e.runner.Run(ctx, h.name, h.op, h.policy)
}

// Cancel stops admission, cancels the context of running operations and resolves
// every queued operation to Cancelled without running it. It is idempotent.
func (e *Executor) Cancel() {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	queued := e.queue
	e.queue = nil
	running := e.active
	e.mu.Unlock()

	e.cancel()
	for _, h := range queued {
		h.resolve(nil, 0, domain.ErrCancelled)
	}

	if len(queued) > 0 || running > 0 {
		e.logger.Info("executor cancelled", "queued", len(queued), "running", running)
	}
}

// Cancelled reports whether Cancel has been called.
func (e *Executor) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// Active returns the number of operations holding a slot.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Queued returns the number of operations waiting for a slot.
func (e *Executor) Queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// AwaitAll blocks until every submitted handle is terminal, including handles
// submitted while waiting. It never fails because an operation failed.
//
// If ctx ends first, the executor is cancelled, the wait continues until running
// operations return, and the complete report is returned together with an error
// wrapping domain.ErrAwaitInterrupted.
func (e *Executor) AwaitAll(ctx context.Context) (Report, error) {
	var interrupted error
	waited := 0

	for {
		e.mu.Lock()
		pending := slices.Clone(e.handles[waited:])
		e.mu.Unlock()

		if len(pending) == 0 {
			break
		}

		for _, h := range pending {
			if interrupted == nil && !waitDone(ctx, h) {
				interrupted = ctx.Err()
				e.Cancel()
			}
			<-h.Done()
		}
		waited += len(pending)
	}

	e.mu.Lock()
	handles := slices.Clone(e.handles)
	e.mu.Unlock()

	rep := buildReport(handles)
	if interrupted != nil {
		return rep, zerr.Wrap(interrupted, domain.ErrAwaitInterrupted.Error())
	}
	return rep, nil
}

// Await blocks until the given handles are terminal or ctx ends. It never cancels
// the executor: on ctx expiry the handles still running are reported as Pending
// and the error wraps domain.ErrAwaitInterrupted.
func (e *Executor) Await(ctx context.Context, handles []*Handle) (Report, error) {
	for _, h := range handles {
		if !waitDone(ctx, h) {
			return buildReport(handles), zerr.Wrap(ctx.Err(), domain.ErrAwaitInterrupted.Error())
		}
	}
	return buildReport(handles), nil
}

// waitDone blocks until h is terminal or ctx ends. A handle that is already
// terminal wins over an expired context.
func waitDone(ctx context.Context, h *Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
	}

	select {
	case <-h.Done():
		return true
	case <-ctx.Done():
		return false
	}
}

// Factory builds executors that share one configuration and set of collaborators.
type Factory struct {
	cfg    Config
	runner *retry.Runner
	logger ports.Logger
	tracer ports.Tracer
}

// NewFactory creates a new Factory.
func NewFactory(cfg Config, runner *retry.Runner, logger ports.Logger, tracer ports.Tracer) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg, runner: runner, logger: logger, tracer: tracer}, nil
}

// New creates a new Executor from the factory configuration.
func (f *Factory) New() *Executor {
	e, _ := New(f.cfg, f.runner, f.logger, f.tracer)
	return e
}

// Logger returns the logger handed to every executor.
func (f *Factory) Logger() ports.Logger { return f.logger }
