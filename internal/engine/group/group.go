// Package group scopes a batch of operations and the resources they use.
// Leaving the scope awaits the operations, runs cleanups and clears the registry.
package group

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/stanza/internal/core/domain"
	"go.trai.ch/stanza/internal/core/ports"
	"go.trai.ch/stanza/internal/engine/executor"
	"go.trai.ch/zerr"
)

// Option configures a group.
type Option func(*options)

type options struct {
	shared  *executor.Executor
	timeout time.Duration
}

// Shared makes the group borrow exec instead of owning a new executor.
// The group then waits only for its own operations and never cancels exec;
// cancellation and timeouts cancel the group's own operations one by one.
func Shared(exec *executor.Executor) Option {
	return func(o *options) { o.shared = exec }
}

// WithTimeout bounds how long leaving the group waits for its operations.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

type cleanup struct {
	name string
	fn   func(context.Context) error
}

// Group is the handle given to the body of Run.
type Group struct {
	id     string
	ctx    context.Context
	exec   *executor.Executor
	owned  bool
	logger ports.Logger

	mu        sync.Mutex
	handles   []*executor.Handle
	resources map[string]any
	cleanups  []cleanup
}

// Run opens a group, calls body and closes the group on every exit path.
//
// Closing waits for the group's operations, then runs the registered cleanups
// in registration order and clears the resource registry. A panic in body is
// re-raised once closing is done. The returned error joins the body error,
// an interrupted wait and any cleanup failures.
func Run(
	ctx context.Context,
	factory *executor.Factory,
	body func(*Group) error,
	opts ...Option,
) (rep executor.Report, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	g := &Group{
		id:        uuid.NewString(),
		ctx:       ctx,
		exec:      o.shared,
		logger:    factory.Logger(),
		resources: make(map[string]any),
	}
	if g.exec == nil {
		g.exec = factory.New()
		g.owned = true
		stop := context.AfterFunc(ctx, g.exec.Cancel)
		defer stop()
	} else {
		stop := context.AfterFunc(ctx, g.cancelHandles)
		defer stop()
	}

	g.logger.Debug("group opened", "group", g.id, "shared", !g.owned)

	var bodyErr error
	defer func() {
		r := recover()
		if r != nil {
			if g.owned {
				g.exec.Cancel()
			} else {
				g.cancelHandles()
			}
		}

		var awaitErr error
		rep, awaitErr = g.await(o.timeout)
		cleanupErr := g.close()

		g.logger.Debug("group closed", "group", g.id,
			"results", len(rep.Results), "errors", len(rep.Errors), "pending", len(rep.Pending))

		if r != nil {
			panic(r)
		}
		err = errors.Join(bodyErr, awaitErr, cleanupErr)
	}()

	bodyErr = body(g)
	return rep, nil
}

// ID returns the unique identifier of the group.
func (g *Group) ID() string { return g.id }

// Context returns the context the group was opened with.
func (g *Group) Context() context.Context { return g.ctx }

// Executor returns the executor backing the group.
func (g *Group) Executor() *executor.Executor { return g.exec }

// Submit queues an operation on the group's executor and tracks its handle.
func (g *Group) Submit(name string, op executor.OperationFunc, policy domain.RetryPolicy) *executor.Handle {
	if !g.owned {
		op = g.guard(op)
	}
	h := g.exec.Submit(name, op, policy)
	g.mu.Lock()
	g.handles = append(g.handles, h)
	g.mu.Unlock()

	if !g.owned && g.ctx.Err() != nil {
		h.Cancel()
	}
	return h
}

// guard stops op from starting an attempt once the group's context has ended.
// An owned executor is cancelled with the context, so it needs no guard.
func (g *Group) guard(op executor.OperationFunc) executor.OperationFunc {
	return func(ctx context.Context) (any, error) {
		if err := g.ctx.Err(); err != nil {
			return nil, domain.Cancelled(err)
		}
		return op(ctx)
	}
}

// cancelHandles cancels every operation the group submitted.
func (g *Group) cancelHandles() {
	g.mu.Lock()
	handles := append([]*executor.Handle(nil), g.handles...)
	g.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

// RegisterResource stores res under name, replacing any earlier value.
func (g *Group) RegisterResource(name string, res any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resources != nil {
		g.resources[name] = res
	}
}

// Resource returns the resource stored under name.
func (g *Group) Resource(name string) (any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.resources[name]
	return res, ok
}

// ResourceAs returns the resource stored under name as a T.
func ResourceAs[T any](g *Group, name string) (T, error) {
	var zero T
	res, ok := g.Resource(name)
	if !ok {
		return zero, zerr.With(domain.ErrResourceNotFound, "resource", name)
	}
	typed, ok := res.(T)
	if !ok {
		return zero, zerr.With(zerr.With(domain.ErrResourceNotFound, "resource", name),
			"type", fmt.Sprintf("%T", res))
	}
	return typed, nil
}

// RegisterCleanup adds fn to the callbacks run when the group closes.
func (g *Group) RegisterCleanup(fn func(context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cleanups = append(g.cleanups, cleanup{name: "cleanup-" + strconv.Itoa(len(g.cleanups)+1), fn: fn})
}

// RegisterCloser stores c as a resource and closes it when the group closes.
func (g *Group) RegisterCloser(name string, c io.Closer) {
	g.RegisterResource(name, c)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cleanups = append(g.cleanups, cleanup{
		name: "close " + name,
		fn:   func(context.Context) error { return c.Close() },
	})
}

func (g *Group) await(timeout time.Duration) (executor.Report, error) {
	ctx := g.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if g.owned {
		rep, err := g.exec.AwaitAll(ctx)
		g.exec.Cancel()
		return rep, err
	}

	g.mu.Lock()
	handles := append([]*executor.Handle(nil), g.handles...)
	g.mu.Unlock()

	rep, err := g.exec.Await(ctx, handles)
	if err != nil {
		// Cleanups must not run while the group's operations are in flight.
		g.cancelHandles()
		rep, _ = g.exec.Await(context.WithoutCancel(g.ctx), handles)
	}
	return rep, err
}

// close runs the cleanups in registration order and clears the registry.
// Every cleanup runs even if an earlier one fails.
func (g *Group) close() error {
	g.mu.Lock()
	cleanups := g.cleanups
	g.cleanups = nil
	g.mu.Unlock()

	ctx := context.WithoutCancel(g.ctx)
	var errs []error
	for _, c := range cleanups {
		if err := runCleanup(ctx, c); err != nil {
			g.logger.Warn("cleanup failed", "group", g.id, "cleanup", c.name, "error", err.Error())
			errs = append(errs, err)
		}
	}

	g.mu.Lock()
	g.resources = nil
	g.mu.Unlock()

	if len(errs) > 0 {
		return zerr.Wrap(errors.Join(errs...), domain.ErrCleanupFailed.Error())
	}
	return nil
}

func runCleanup(ctx context.Context, c cleanup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = zerr.With(zerr.New("cleanup panicked"), "panic", fmt.Sprint(r))
		}
	}()
	return c.fn(ctx)
}
