package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// =============================================================================
// Context Helper
// =============================================================================

type workerCtxKey struct{}

// CurrentWorker returns the worker executing the current task, or nil when
// the context does not come from inside a pool. Fork and Join use it to find
// the calling worker's queue.
func CurrentWorker(ctx context.Context) *Worker {
	if v := ctx.Value(workerCtxKey{}); v != nil {
		return v.(*Worker)
	}
	return nil
}

// =============================================================================
// Worker
// =============================================================================

// Worker owns one WorkQueue plus a submission inbox and runs the scheduling
// loop: pop local work, steal when empty, park with backoff when the whole
// pool looks idle.
type Worker struct {
	index int
	pool  *Pool
	deque *WorkQueue
	inbox *FIFOQueue[*taskCell]

	// running is the cell currently executing on this worker, for stats and
	// for marking the parent Waiting while it joins forked children.
	running atomic.Pointer[taskCell]

	steals   atomic.Uint64
	executed atomic.Uint64
}

func newWorker(p *Pool, index int, queueCapacity int) *Worker {
	return &Worker{
		index: index,
		pool:  p,
		deque: NewWorkQueue(queueCapacity),
		inbox: NewFIFOQueue[*taskCell](),
	}
}

// Index returns the worker's identity within its pool, used for
// steal-victim selection and diagnostics.
func (w *Worker) Index() int {
	return w.index
}

// Pool returns the pool owning this worker.
func (w *Worker) Pool() *Pool {
	return w.pool
}

// Stats returns current observability data for this worker.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Index:    w.index,
		QueueLen: w.deque.Len(),
		InboxLen: w.inbox.Len(),
		Steals:   w.steals.Load(),
		Executed: w.executed.Load(),
	}
}

// loop is the worker main loop. It exits when shutdown is signaled and,
// under the drain policy, all queued and active work has finished.
func (w *Worker) loop(ctx context.Context) {
	defer w.pool.wg.Done()

	p := w.pool
	attempt := 0

	for {
		// Discard mode: stop picking up work immediately; whatever is still
		// queued is failed by the pool once all workers have exited.
		if p.discarding.Load() {
			return
		}

		cell, stolen, ok := w.next()
		if ok {
			attempt = 0
			w.runTask(ctx, cell, stolen)
			continue
		}

		if p.shuttingDown.Load() {
			if p.discarding.Load() {
				return
			}
			// Drain mode: only exit once nothing is queued anywhere and no
			// task is mid-flight (a running task may still fork).
			if p.queued.Load() == 0 && p.active.Load() == 0 {
				return
			}
		}

		delay := p.backoff.Delay(attempt)
		if delay <= 0 {
			runtime.Gosched()
			attempt++
			continue
		}
		select {
		case <-p.signal:
			attempt = 0
		case <-time.After(delay):
			attempt++
		}
	}
}

// next returns the next runnable cell: own deque first (LIFO), then the
// submission inbox, then a steal sweep over peers. stolen reports whether
// the cell came from another worker's queue.
func (w *Worker) next() (cell *taskCell, stolen bool, ok bool) {
	for {
		c, popped := w.deque.PopBottom()
		if !popped {
			break
		}
		if w.pool.noteDequeued(c) {
			return c, false, true
		}
	}
	for {
		c, popped := w.inbox.Pop()
		if !popped {
			break
		}
		if w.pool.noteDequeued(c) {
			return c, false, true
		}
	}
	return w.trySteal()
}

// trySteal sweeps the peers once from a random starting index, taking the
// oldest task from the first non-empty deque or inbox it finds.
func (w *Worker) trySteal() (*taskCell, bool, bool) {
	p := w.pool
	n := len(p.workers)
	if n < 2 {
		return nil, false, false
	}

	start := rand.IntN(n)
	for i := 0; i < n; i++ {
		victim := p.workers[(start+i)%n]
		if victim == w {
			continue
		}
		if c, ok := victim.deque.PopTop(); ok {
			if !p.noteDequeued(c) {
				continue
			}
			p.metrics.RecordSteal(p.name, true)
			return c, true, true
		}
		if c, ok := victim.inbox.Pop(); ok {
			if !p.noteDequeued(c) {
				continue
			}
			p.metrics.RecordSteal(p.name, true)
			return c, true, true
		}
	}
	p.metrics.RecordSteal(p.name, false)
	return nil, false, false
}

// runTask executes one cell with panic isolation. A panicking body never
// takes the worker down: the panic is recovered, the task's future is
// rejected, and the loop resumes.
func (w *Worker) runTask(ctx context.Context, cell *taskCell, stolen bool) {
	p := w.pool
	if !cell.casState(TaskQueued, TaskRunning) {
		// Cancelled between pop and execution.
		return
	}

	prev := w.running.Load()
	w.running.Store(cell)
	p.active.Add(1)
	w.executed.Add(1)
	if stolen {
		w.steals.Add(1)
		p.stealsTotal.Add(1)
	}

	runCtx := context.WithValue(ctx, workerCtxKey{}, w)
	started := time.Now()

	func() {
		defer func() {
			if r := recover(); r != nil {
				cell.storeState(TaskFailed)
				stack := debug.Stack()
				cell.fail(&PanicError{Value: r, Stack: stack})
				p.panicHandler.HandlePanic(runCtx, p.name, w.index, r, stack)
				p.metrics.RecordTaskPanic(p.name, r)
			}
		}()
		cell.run(runCtx)
	}()

	finished := time.Now()
	p.metrics.RecordTaskDuration(p.name, finished.Sub(started))
	p.history.Add(TaskExecutionRecord{
		TaskID:     cell.id,
		Pool:       p.name,
		WorkerID:   w.index,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		Stolen:     stolen,
		Failed:     cell.loadState() == TaskFailed,
	})

	p.roots.Delete(cell.id)
	p.active.Add(-1)
	w.running.Store(prev)
}

// helpUntil is the cooperative join loop: instead of blocking, the worker
// keeps executing its own queue and stealing until done closes. This is what
// lets join depth exceed worker count without starving the pool.
func (w *Worker) helpUntil(ctx context.Context, done <-chan struct{}) error {
	// The task doing the join is waiting on forked children, not running.
	cur := w.running.Load()
	if cur != nil && cur.casState(TaskRunning, TaskWaiting) {
		defer cur.casState(TaskWaiting, TaskRunning)
	}

	attempt := 0
	for {
		select {
		case <-done:
			return nil
		default:
		}

		if cell, stolen, ok := w.next(); ok {
			attempt = 0
			w.runTask(ctx, cell, stolen)
			continue
		}

		delay := w.pool.backoff.Delay(attempt)
		if delay <= 0 {
			runtime.Gosched()
			attempt++
			continue
		}
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStarvationTimeout, ctx.Err())
		case <-w.pool.signal:
			attempt = 0
		case <-time.After(delay):
			attempt++
		}
	}
}
