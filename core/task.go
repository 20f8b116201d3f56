package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// Func is the unit of work for a value-producing task. Side-effecting tasks
// use Func[struct{}].
type Func[T any] func(ctx context.Context) (T, error)

// =============================================================================
// TaskID
// =============================================================================

// TaskID identifies a task within the process. IDs are unique per process
// lifetime and monotonically increasing.
type TaskID uint64

var taskIDCounter atomic.Uint64

func nextTaskID() TaskID {
	return TaskID(taskIDCounter.Add(1))
}

// =============================================================================
// TaskState: lifecycle of a task
// =============================================================================

type TaskState int32

const (
	// TaskUnscheduled: created but not yet enqueued anywhere.
	TaskUnscheduled TaskState = iota

	// TaskQueued: sitting in a worker deque or submission inbox.
	TaskQueued

	// TaskRunning: currently executing on a worker.
	TaskRunning

	// TaskWaiting: the task body forked children and is inside Join,
	// cooperatively executing other work until they resolve.
	TaskWaiting

	// TaskCompleted: body returned a value. Terminal.
	TaskCompleted

	// TaskFailed: body returned an error or panicked. Terminal.
	TaskFailed

	// TaskCancelled: cancelled before it started. Terminal; the body never ran.
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskUnscheduled:
		return "unscheduled"
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskWaiting:
		return "waiting"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// =============================================================================
// taskCell: type-erased unit held by queues and workers
// =============================================================================

// taskCell is what actually travels through deques and inboxes. The generic
// Task[T] wraps one; the closures bound at construction time carry the typed
// body and future so workers never need to know T.
type taskCell struct {
	id    TaskID
	state atomic.Int32

	// run executes the body and settles the future. Invoked at most once,
	// by the worker that won the cell.
	run func(ctx context.Context)

	// fail settles the future with an error without running the body
	// (cancellation, pool shutdown, panic recovery).
	fail func(err error)

	mu        sync.Mutex
	cancelRun context.CancelFunc // non-nil only while running
	cancelled atomic.Bool
}

func (c *taskCell) loadState() TaskState {
	return TaskState(c.state.Load())
}

func (c *taskCell) casState(from, to TaskState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

func (c *taskCell) storeState(s TaskState) {
	c.state.Store(int32(s))
}

// cancel implements best-effort cancellation. A queued cell is claimed and
// never runs; a running cell has its context cancelled and the body must
// observe it. Returns true if the cell was prevented from running.
func (c *taskCell) cancel() bool {
	c.cancelled.Store(true)

	if c.casState(TaskQueued, TaskCancelled) || c.casState(TaskUnscheduled, TaskCancelled) {
		c.fail(ErrTaskCancelled)
		return true
	}

	c.mu.Lock()
	if c.cancelRun != nil {
		c.cancelRun()
	}
	c.mu.Unlock()
	return false
}

// =============================================================================
// Task[T]: typed handle to a unit of work submitted to a Pool
// =============================================================================

// Task is a typed handle to a submitted or forked unit of work. Its result is
// observed through Join or through the attached Future.
type Task[T any] struct {
	cell *taskCell
	fut  *Future[T]
	pool *Pool
}

func newTask[T any](p *Pool, fn Func[T]) *Task[T] {
	fut := newFutureWith[T](submitterOrNil(p))
	cell := &taskCell{id: nextTaskID()}

	cell.fail = func(err error) {
		_ = fut.tryFail(&TaskError{TaskID: cell.id, Err: err})
		// A cell settled without running never reaches runTask's cleanup, so
		// drop it from the root registry here. No-op for forked children.
		if p != nil {
			p.roots.Delete(cell.id)
		}
	}
	cell.run = func(ctx context.Context) {
		runCtx, cancel := context.WithCancel(ctx)
		cell.mu.Lock()
		cell.cancelRun = cancel
		cell.mu.Unlock()
		// Cancel may have raced with the Queued->Running transition.
		if cell.cancelled.Load() {
			cancel()
		}
		defer func() {
			cell.mu.Lock()
			cell.cancelRun = nil
			cell.mu.Unlock()
			cancel()
		}()

		v, err := fn(runCtx)
		if err != nil {
			cell.storeState(TaskFailed)
			_ = fut.tryFail(&TaskError{TaskID: cell.id, Err: err})
			return
		}
		cell.storeState(TaskCompleted)
		_ = fut.tryComplete(v)
	}

	return &Task[T]{cell: cell, fut: fut, pool: p}
}

// submitterOrNil avoids storing a typed-nil *Pool inside the Submitter
// interface value of a future.
func submitterOrNil(p *Pool) Submitter {
	if p == nil {
		return nil
	}
	return p
}

// ID returns the task's process-unique identifier.
func (t *Task[T]) ID() TaskID {
	return t.cell.id
}

// State returns the current lifecycle state of the task.
func (t *Task[T]) State() TaskState {
	return t.cell.loadState()
}

// Future returns the future resolved by this task's completion.
func (t *Task[T]) Future() *Future[T] {
	return t.fut
}

// Cancel requests cancellation. A task still queued never runs and its future
// fails with ErrTaskCancelled. A running task has its context cancelled;
// whether it stops is up to the body. Returns true if the task was prevented
// from running.
func (t *Task[T]) Cancel() bool {
	return t.cell.cancel()
}

// Join waits for the task's result.
//
// Called from inside a worker (i.e. from a task body), the worker does not
// block: it keeps executing its own queue and stealing from peers until this
// task resolves. This is what keeps deep fork/join trees from starving a
// fixed-size pool. Called from outside the pool, Join degrades to a plain
// blocking wait on the future.
//
// A ctx deadline that expires while cooperatively waiting surfaces
// ErrStarvationTimeout.
func (t *Task[T]) Join(ctx context.Context) (T, error) {
	if w := CurrentWorker(ctx); w != nil && w.pool == t.pool {
		if err := w.helpUntil(ctx, t.fut.Done()); err != nil {
			var zero T
			return zero, err
		}
		return t.fut.Value(), t.fut.Err()
	}
	return t.fut.Get(ctx)
}
