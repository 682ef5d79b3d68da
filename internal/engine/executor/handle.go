package executor

import (
	"context"
	"sync"

	"go.trai.ch/stanza/internal/core/domain"
)

// Handle tracks one submitted operation.
// Its state is written only by the executor; every accessor is safe for concurrent use.
type Handle struct {
	seq    uint64
	name   string
	op     OperationFunc
	policy domain.RetryPolicy
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    domain.TaskState
	value    any
	err      error
	attempts int
	done     chan struct{}
}

func newHandle(parent context.Context, seq uint64, name string, op OperationFunc, policy domain.RetryPolicy) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		seq:    seq,
		name:   name,
		op:     op,
		policy: policy,
		ctx:    ctx,
		cancel: cancel,
		state:  domain.StatePending,
		done:   make(chan struct{}),
	}
}

// Seq returns the submission number of the operation, starting at 1 per executor.
func (h *Handle) Seq() uint64 { return h.seq }

// Name returns the operation name given at submission.
func (h *Handle) Name() string { return h.name }

// State returns the current lifecycle state.
func (h *Handle) State() domain.TaskState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Value returns the result of a completed operation.
func (h *Handle) Value() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

// Err returns the final error of a failed or cancelled operation.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Attempts returns the number of times the operation body was called.
func (h *Handle) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// Done is closed once the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the operation is terminal or ctx is done.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, domain.Cancelled(ctx.Err())
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}

// Cancel cancels this operation alone. A queued operation resolves to Cancelled
// without ever running; a running one sees its context cancelled and resolves
// once its body returns. Cancelling a terminal handle has no effect.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case domain.StatePending:
		h.finishLocked(nil, 0, domain.ErrCancelled)
	case domain.StateRunning:
		h.cancel()
	}
}

// start moves a pending handle to running. It reports false if the handle is already terminal.
func (h *Handle) start() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != domain.StatePending {
		return false
	}
	h.state = domain.StateRunning
	return true
}

// resolve records the outcome. Later calls are ignored.
func (h *Handle) resolve(value any, attempts int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Terminal() {
		return
	}
	h.finishLocked(value, attempts, err)
}

func (h *Handle) finishLocked(value any, attempts int, err error) {
	h.attempts = attempts
	switch {
	case err == nil:
		h.state = domain.StateCompleted
		h.value = value
	case domain.IsCancellation(err):
		h.state = domain.StateCancelled
		h.err = err
	default:
		h.state = domain.StateFailed
		h.err = err
	}
	h.cancel()
	close(h.done)
}
