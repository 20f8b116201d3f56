package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// =============================================================================
// ShutdownPolicy
// =============================================================================

type ShutdownPolicy int

const (
	// DrainPending: Stop waits for every queued task to execute.
	DrainPending ShutdownPolicy = iota

	// DiscardPending: Stop lets in-flight tasks finish but fails queued,
	// unstarted tasks with ErrPoolShutdown.
	DiscardPending
)

// =============================================================================
// Config
// =============================================================================

// Config holds pool construction options. All handlers are optional; if not
// provided, default implementations will be used.
type Config struct {
	// Name labels the pool in logs and metrics. Defaults to a generated id.
	Name string

	// Workers is the number of worker goroutines. Defaults to
	// runtime.GOMAXPROCS(0).
	Workers int

	// QueueCapacity bounds each worker's deque. 0 means unbounded. When a
	// bounded deque is full, Fork runs the child inline on the forking
	// worker instead of queueing it.
	QueueCapacity int

	// StealBackoff controls how idle workers park between empty steal
	// sweeps. Defaults to DefaultBackoffPolicy.
	StealBackoff BackoffPolicy

	// ShutdownPolicy selects Stop behavior for queued, unstarted tasks.
	ShutdownPolicy ShutdownPolicy

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a submission is rejected.
	// Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives lifecycle logs. Defaults to NoOpLogger.
	Logger Logger

	// HistoryCapacity sizes the recent-execution ring buffer.
	HistoryCapacity int
}

// DefaultConfig returns a config with default values; handlers left nil are
// filled in by NewPool.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.GOMAXPROCS(0),
		StealBackoff: DefaultBackoffPolicy(),
	}
}

// =============================================================================
// Pool
// =============================================================================

// Pool owns a fixed set of workers created at startup and schedules
// recursively decomposed tasks across them by work-stealing. All submitted
// tasks are owned by the pool until completion.
type Pool struct {
	name    string
	workers []*Worker

	// signal is a wake-up hint for parked workers; a dropped send is fine
	// because the task is already queued.
	signal chan struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	running   bool
	runningMu sync.RWMutex

	shuttingDown atomic.Bool
	discarding   atomic.Bool

	rr     atomic.Uint64
	queued atomic.Int64
	active atomic.Int64

	stealsTotal atomic.Uint64

	// roots tracks submitted (non-forked) tasks still in flight, keyed by
	// task id, for lookup-based cancellation and shutdown accounting.
	roots *xsync.MapOf[TaskID, *taskCell]

	policy       ShutdownPolicy
	backoff      BackoffPolicy
	panicHandler PanicHandler
	metrics      Metrics
	rejected     RejectedTaskHandler
	logger       Logger

	history executionHistory
}

// NewPool creates a pool. Workers do not start until Start is called.
func NewPool(cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Name == "" {
		cfg.Name = "pool-" + uuid.NewString()
	}
	if cfg.StealBackoff == (BackoffPolicy{}) {
		cfg.StealBackoff = DefaultBackoffPolicy()
	}
	if cfg.PanicHandler == nil {
		cfg.PanicHandler = &DefaultPanicHandler{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &NilMetrics{}
	}
	if cfg.RejectedTaskHandler == nil {
		cfg.RejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}

	p := &Pool{
		name:         cfg.Name,
		signal:       make(chan struct{}, cfg.Workers*2),
		roots:        xsync.NewMapOf[TaskID, *taskCell](),
		policy:       cfg.ShutdownPolicy,
		backoff:      cfg.StealBackoff,
		panicHandler: cfg.PanicHandler,
		metrics:      cfg.Metrics,
		rejected:     cfg.RejectedTaskHandler,
		logger:       cfg.Logger,
		history:      newExecutionHistory(cfg.HistoryCapacity),
	}

	p.workers = make([]*Worker, cfg.Workers)
	for i := range p.workers {
		p.workers[i] = newWorker(p, i, cfg.QueueCapacity)
	}
	return p
}

// Start launches all worker goroutines. Repeated calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return // Already running
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for _, w := range p.workers {
		p.wg.Add(1)
		go w.loop(p.ctx)
	}

	p.logger.Info("pool started",
		F("pool", p.name),
		F("workers", len(p.workers)))
}

// Stop shuts the pool down according to its ShutdownPolicy: new submissions
// are rejected, in-flight tasks run to completion, and queued tasks are
// either drained (DrainPending, in which case Stop blocks until the pool is
// empty) or failed with ErrPoolShutdown (DiscardPending). Finally all
// workers are joined.
func (p *Pool) Stop() {
	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.runningMu.Unlock()

	p.shuttingDown.Store(true)
	if p.policy == DiscardPending {
		p.discarding.Store(true)
	}

	p.wg.Wait()

	if p.discarding.Load() {
		p.discardQueued()
	}
	p.cancel()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	p.logger.Info("pool stopped", F("pool", p.name))
}

// StopGraceful drains queued and in-flight tasks, waiting at most timeout.
// On timeout the remaining queued tasks are discarded (failed with
// ErrPoolShutdown) and an error is returned.
func (p *Pool) StopGraceful(timeout time.Duration) error {
	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return nil
	}
	p.runningMu.Unlock()

	p.shuttingDown.Store(true)

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timedOut := false
poll:
	for {
		select {
		case <-deadline:
			timedOut = true
			p.discarding.Store(true)
			break poll
		case <-ticker.C:
			if p.queued.Load() == 0 && p.active.Load() == 0 {
				break poll
			}
		}
	}

	p.wg.Wait()
	if p.discarding.Load() {
		p.discardQueued()
	}
	p.cancel()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()

	if timedOut {
		return fmt.Errorf("shutdown graceful timeout after %v, discarded queued tasks", timeout)
	}
	return nil
}

// IsRunning returns whether the pool's workers are running.
func (p *Pool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// Name returns the pool's name.
func (p *Pool) Name() string {
	return p.name
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int {
	return len(p.workers)
}

// Worker returns the worker at the given index.
func (p *Pool) Worker(i int) *Worker {
	return p.workers[i]
}

// QueuedTaskCount returns the number of tasks waiting in deques and inboxes.
func (p *Pool) QueuedTaskCount() int {
	return int(p.queued.Load())
}

// ActiveTaskCount returns the number of tasks currently executing.
func (p *Pool) ActiveTaskCount() int {
	return int(p.active.Load())
}

// InFlightRoots returns the number of submitted root tasks not yet finished.
func (p *Pool) InFlightRoots() int {
	return p.roots.Size()
}

// CancelRoot cancels a submitted root task by id. Returns true if the task
// was found and prevented from running.
func (p *Pool) CancelRoot(id TaskID) bool {
	cell, ok := p.roots.Load(id)
	if !ok {
		return false
	}
	return cell.cancel()
}

// Stats returns current observability data for this pool.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Name:    p.name,
		Workers: len(p.workers),
		Queued:  p.QueuedTaskCount(),
		Active:  p.ActiveTaskCount(),
		Steals:  p.stealsTotal.Load(),
		Running: p.IsRunning(),
	}
}

// WorkerStats returns per-worker observability snapshots.
func (p *Pool) WorkerStats() []WorkerStats {
	out := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.Stats()
	}
	return out
}

// RecentTasks returns completed task execution records in newest-first order.
func (p *Pool) RecentTasks(limit int) []TaskExecutionRecord {
	return p.history.Recent(limit)
}

// Dispatch implements Submitter: continuation work is injected like a
// submission so it runs on a worker instead of the completing goroutine's
// stack. Once shutdown has begun, continuations run on their own goroutine
// so settled futures still propagate.
func (p *Pool) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	if p.shuttingDown.Load() || !p.IsRunning() {
		go fn()
		return
	}
	cell := &taskCell{id: nextTaskID()}
	cell.fail = func(error) {}
	cell.run = func(ctx context.Context) { fn() }
	cell.storeState(TaskQueued)
	p.inject(cell)

	// Same race as Submit: if shutdown began mid-injection the continuation
	// could be stranded in an inbox no worker will drain, stalling the
	// future chain. Reclaim and run it on its own goroutine instead.
	if p.shuttingDown.Load() && cell.casState(TaskQueued, TaskCancelled) {
		go fn()
	}
}

// =============================================================================
// Submission
// =============================================================================

// Submit enqueues a root task on a round-robin chosen worker's inbox and
// returns its handle. Never blocks the caller. Returns ErrPoolShutdown once
// shutdown has begun.
func Submit[T any](p *Pool, fn Func[T]) (*Task[T], error) {
	if fn == nil {
		panic("forkjoin: Submit with nil task func")
	}
	if p.shuttingDown.Load() {
		p.rejected.HandleRejectedTask(p.name, "shutdown")
		p.metrics.RecordTaskRejected(p.name, "shutdown")
		return nil, ErrPoolShutdown
	}

	t := newTask(p, fn)
	t.cell.storeState(TaskQueued)
	p.roots.Store(t.cell.id, t.cell)
	p.inject(t.cell)

	// Shutdown may have begun between the check above and inject, in which
	// case the discard sweep can already have run past this cell. Reclaim it
	// so its future settles; a worker that popped it first won the CAS and
	// runs it normally.
	if p.shuttingDown.Load() && t.cell.casState(TaskQueued, TaskCancelled) {
		t.cell.fail(ErrPoolShutdown)
		p.rejected.HandleRejectedTask(p.name, "shutdown")
		p.metrics.RecordTaskRejected(p.name, "shutdown")
		return nil, ErrPoolShutdown
	}
	return t, nil
}

// Fork pushes a new child task onto the calling worker's own deque, to be
// executed later by this worker or a thief. Returns immediately. Must be
// called from inside a task body; anywhere else it returns ErrNotWorker.
//
// On a bounded deque that is full, the child runs inline on the forking
// worker before Fork returns (the pool's backpressure policy).
func Fork[T any](ctx context.Context, fn Func[T]) (*Task[T], error) {
	if fn == nil {
		panic("forkjoin: Fork with nil task func")
	}
	w := CurrentWorker(ctx)
	if w == nil {
		return nil, ErrNotWorker
	}
	p := w.pool

	t := newTask(p, fn)
	t.cell.storeState(TaskQueued)

	if !w.deque.PushBottom(t.cell) {
		w.runTask(ctx, t.cell, false)
		return t, nil
	}

	p.queued.Add(1)
	p.metrics.RecordQueueDepth(p.name, w.index, w.deque.Len())
	p.notify()
	return t, nil
}

func (p *Pool) inject(cell *taskCell) {
	idx := int(p.rr.Add(1)-1) % len(p.workers)
	w := p.workers[idx]
	w.inbox.Push(cell)
	p.queued.Add(1)
	p.metrics.RecordQueueDepth(p.name, w.index, w.inbox.Len())
	p.notify()
}

func (p *Pool) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full; workers are awake anyway.
	}
}

// noteDequeued accounts for a cell leaving a queue. Reports false for cells
// cancelled while queued, which the caller skips (their futures are already
// settled).
func (p *Pool) noteDequeued(cell *taskCell) bool {
	p.queued.Add(-1)
	return cell.loadState() == TaskQueued
}

// discardQueued fails every still-queued task. Called after all workers
// have exited, so the queues have no concurrent owners left.
func (p *Pool) discardQueued() {
	dropped := 0
	for _, w := range p.workers {
		for {
			c, ok := w.deque.PopTop()
			if !ok {
				break
			}
			if p.dropCell(c) {
				dropped++
			}
		}
		for _, c := range w.inbox.Drain() {
			if p.dropCell(c) {
				dropped++
			}
		}
	}
	if dropped > 0 {
		p.logger.Warn("discarded queued tasks on shutdown",
			F("pool", p.name),
			F("count", dropped))
	}
}

func (p *Pool) dropCell(c *taskCell) bool {
	p.queued.Add(-1)
	if !c.casState(TaskQueued, TaskCancelled) {
		return false
	}
	c.fail(ErrPoolShutdown)
	p.metrics.RecordTaskRejected(p.name, "shutdown")
	p.roots.Delete(c.id)
	return true
}
