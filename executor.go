package forkjoin

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stealpool/forkjoin/core"
)

// Unit is a fire-and-forget unit of work for the Executor.
type Unit func(ctx context.Context)

// Executor is the thin task-submission collaborator: a fixed set of worker
// goroutines pulling independent units of work from one shared FIFO queue.
// No forking, no stealing, no result plumbing beyond SubmitFuture — use a
// Pool when work decomposes recursively.
//
// Executor implements core.Submitter, so futures can trampoline their
// continuations onto it.
type Executor struct {
	id      string
	workers int

	queue  *core.FIFOQueue[Unit]
	signal chan struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	running   bool
	runningMu sync.RWMutex

	shuttingDown atomic.Bool

	queuedCount atomic.Int32
	activeCount atomic.Int32

	panicHandler core.PanicHandler
	logger       core.Logger
}

// NewExecutor creates an Executor with the given worker count. An empty id
// gets a generated one.
func NewExecutor(id string, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	if id == "" {
		id = "executor-" + uuid.NewString()
	}
	return &Executor{
		id:           id,
		workers:      workers,
		queue:        core.NewFIFOQueue[Unit](),
		signal:       make(chan struct{}, workers*2),
		panicHandler: &core.DefaultPanicHandler{},
		logger:       core.NewNoOpLogger(),
	}
}

// SetPanicHandler replaces the panic handler. Call before Start.
func (e *Executor) SetPanicHandler(h core.PanicHandler) {
	if h != nil {
		e.panicHandler = h
	}
}

// SetLogger replaces the logger. Call before Start.
func (e *Executor) SetLogger(l core.Logger) {
	if l != nil {
		e.logger = l
	}
}

// ID returns the ID of the executor.
func (e *Executor) ID() string {
	return e.id
}

// WorkerCount returns the number of workers.
func (e *Executor) WorkerCount() int {
	return e.workers
}

// QueuedTaskCount returns the number of queued units.
func (e *Executor) QueuedTaskCount() int {
	return int(e.queuedCount.Load())
}

// ActiveTaskCount returns the number of executing units.
func (e *Executor) ActiveTaskCount() int {
	return int(e.activeCount.Load())
}

// IsRunning returns whether the executor is running.
func (e *Executor) IsRunning() bool {
	e.runningMu.RLock()
	defer e.runningMu.RUnlock()
	return e.running
}

// Start starts all worker goroutines. Repeated calls are no-ops.
func (e *Executor) Start(ctx context.Context) {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()

	if e.running {
		return // Already running
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.workerLoop(i, e.ctx)
	}
}

// Submit enqueues a unit for execution. Returns ErrPoolShutdown once Stop
// has begun.
func (e *Executor) Submit(u Unit) error {
	if u == nil {
		panic("forkjoin: Executor.Submit with nil unit")
	}
	if e.shuttingDown.Load() {
		return ErrPoolShutdown
	}

	e.queue.Push(u)
	e.queuedCount.Add(1)

	select {
	case e.signal <- struct{}{}:
	default:
		// Signal channel full, but the unit is already queued.
	}
	return nil
}

// Dispatch implements core.Submitter. Falls back to a fresh goroutine once
// the executor is shut down so settled futures still propagate.
func (e *Executor) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	if err := e.Submit(func(context.Context) { fn() }); err != nil {
		go fn()
	}
}

// Stop stops the executor immediately: queued, unstarted units are dropped
// and workers are joined after their current unit.
func (e *Executor) Stop() {
	e.shuttingDown.Store(true)

	e.runningMu.Lock()
	if !e.running {
		e.runningMu.Unlock()
		return
	}
	e.runningMu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	dropped := e.queue.Drain()
	e.queuedCount.Add(int32(-len(dropped)))

	e.runningMu.Lock()
	e.running = false
	e.runningMu.Unlock()
}

// StopGraceful waits for queued units to finish, up to timeout, then stops.
// Returns an error when the timeout expired with work still pending.
func (e *Executor) StopGraceful(timeout time.Duration) error {
	e.shuttingDown.Store(true)

	e.runningMu.Lock()
	if !e.running {
		e.runningMu.Unlock()
		return nil
	}
	e.runningMu.Unlock()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	var timeoutErr error
poll:
	for {
		select {
		case <-deadline:
			timeoutErr = fmt.Errorf("executor graceful stop timeout after %v", timeout)
			break poll
		case <-ticker.C:
			if e.QueuedTaskCount() == 0 && e.ActiveTaskCount() == 0 {
				break poll
			}
		}
	}

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	dropped := e.queue.Drain()
	e.queuedCount.Add(int32(-len(dropped)))

	e.runningMu.Lock()
	e.running = false
	e.runningMu.Unlock()

	return timeoutErr
}

// workerLoop pulls units from the shared queue until the context closes.
func (e *Executor) workerLoop(id int, ctx context.Context) {
	defer e.wg.Done()

	for {
		u, ok := e.getWork(ctx)
		if !ok {
			return
		}

		e.activeCount.Add(1)
		func() {
			defer func() {
				e.activeCount.Add(-1)
				if r := recover(); r != nil {
					e.panicHandler.HandlePanic(ctx, e.id, id, r, debug.Stack())
				}
			}()
			u(ctx)
		}()
	}
}

func (e *Executor) getWork(ctx context.Context) (Unit, bool) {
	for {
		if u, ok := e.queue.Pop(); ok {
			e.queuedCount.Add(-1)
			return u, true
		}

		select {
		case <-e.signal:
			continue
		case <-ctx.Done():
			return nil, false
		}
	}
}

// SubmitFuture runs fn on the executor and returns a future settled with its
// outcome. The future dispatches its continuations back through the
// executor.
func SubmitFuture[T any](e *Executor, fn Func[T]) (*Future[T], error) {
	fut := NewFutureWith[T](e)
	err := e.Submit(func(ctx context.Context) {
		v, err := fn(ctx)
		if err != nil {
			_ = fut.Fail(err)
			return
		}
		_ = fut.Complete(v)
	})
	if err != nil {
		return nil, err
	}
	return fut, nil
}
