package core

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCompleted is returned by Complete/Fail when the future has
	// already been settled. Double resolution is an error, not a panic and
	// not a silent no-op.
	ErrAlreadyCompleted = errors.New("forkjoin: future already completed")

	// ErrPoolShutdown is returned on submission after shutdown began, and
	// carried by futures of queued tasks discarded during shutdown.
	ErrPoolShutdown = errors.New("forkjoin: pool is shut down")

	// ErrTaskCancelled is carried by the future of a task cancelled before
	// it started running.
	ErrTaskCancelled = errors.New("forkjoin: task cancelled")

	// ErrNotWorker is returned by Fork when called outside a worker context.
	ErrNotWorker = errors.New("forkjoin: fork called outside a worker context")

	// ErrStarvationTimeout is returned by Join when the ctx deadline expires
	// while the worker is cooperatively waiting.
	ErrStarvationTimeout = errors.New("forkjoin: join deadline exceeded")
)

// TaskError wraps a task body failure with the failing task's identity.
type TaskError struct {
	TaskID TaskID
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("forkjoin: task %d failed: %v", e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered from a task body or a continuation
// into the future chain.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("forkjoin: panic: %v", e.Value)
}
