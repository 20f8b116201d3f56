package forkjoin

import (
	"context"

	"github.com/stealpool/forkjoin/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the forkjoin package for most use cases.

// Pool is the work-stealing fork-join scheduler.
type Pool = core.Pool

// Config holds pool construction options.
type Config = core.Config

// ShutdownPolicy selects Stop behavior for queued, unstarted tasks.
type ShutdownPolicy = core.ShutdownPolicy

// Worker runs one scheduling loop and owns one work queue.
type Worker = core.Worker

// Task is a typed handle to a submitted or forked unit of work.
type Task[T any] = core.Task[T]

// Future is a single-assignment result cell with attachable continuations.
type Future[T any] = core.Future[T]

// Func is the unit of work for a value-producing task.
type Func[T any] = core.Func[T]

// TaskID identifies a task within the process.
type TaskID = core.TaskID

// TaskState is the lifecycle state of a task.
type TaskState = core.TaskState

// FutureState is the settlement state of a future.
type FutureState = core.FutureState

// BackoffPolicy controls idle-worker parking between steal sweeps.
type BackoffPolicy = core.BackoffPolicy

// Submitter re-submits continuation work to a scheduler.
type Submitter = core.Submitter

// Observability and handler surfaces.
type (
	PanicHandler        = core.PanicHandler
	Metrics             = core.Metrics
	RejectedTaskHandler = core.RejectedTaskHandler
	Logger              = core.Logger
	Field               = core.Field
	PoolStats           = core.PoolStats
	WorkerStats         = core.WorkerStats
	TaskExecutionRecord = core.TaskExecutionRecord
	TaskError           = core.TaskError
	PanicError          = core.PanicError
)

// Shutdown policies.
const (
	DrainPending   ShutdownPolicy = core.DrainPending
	DiscardPending ShutdownPolicy = core.DiscardPending
)

// Sentinel errors.
var (
	ErrAlreadyCompleted  = core.ErrAlreadyCompleted
	ErrPoolShutdown      = core.ErrPoolShutdown
	ErrTaskCancelled     = core.ErrTaskCancelled
	ErrNotWorker         = core.ErrNotWorker
	ErrStarvationTimeout = core.ErrStarvationTimeout
)

// Constructors and helpers.
var (
	NewPool              = core.NewPool
	DefaultConfig        = core.DefaultConfig
	DefaultBackoffPolicy = core.DefaultBackoffPolicy
	FixedBackoff         = core.FixedBackoff
	CurrentWorker        = core.CurrentWorker
	F                    = core.F
)

// Submit enqueues a root task on the pool and returns its handle.
func Submit[T any](p *Pool, fn Func[T]) (*Task[T], error) {
	return core.Submit(p, fn)
}

// Fork pushes a child task onto the calling worker's queue.
func Fork[T any](ctx context.Context, fn Func[T]) (*Task[T], error) {
	return core.Fork(ctx, fn)
}

// NewFuture creates a standalone future with inline callback dispatch.
func NewFuture[T any]() *Future[T] {
	return core.NewFuture[T]()
}

// NewFutureWith creates a future dispatching callbacks through exec.
func NewFutureWith[T any](exec Submitter) *Future[T] {
	return core.NewFutureWith[T](exec)
}

// Map returns a future resolved with fn applied to f's value.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	return core.Map(f, fn)
}

// AndThen chains an asynchronous continuation returning a new future.
func AndThen[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	return core.AndThen(f, fn)
}

// Recover intercepts a rejection and continues the chain with fn's outcome.
func Recover[T any](f *Future[T], fn func(error) (T, error)) *Future[T] {
	return core.Recover(f, fn)
}

// All resolves with every future's value or rejects with the first error.
func All[T any](fs ...*Future[T]) *Future[[]T] {
	return core.All(fs...)
}
