package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body panics during execution. The panic
// never escapes the worker: it is recovered, the task's future is rejected
// with a PanicError, and the handler is invoked for logging or reporting.
//
// Implementations must be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - poolName: The name of the pool where the panic occurred
	// - workerID: The index of the worker that ran the task (-1 for Executor)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, poolName string, workerID int, panicInfo any, stackTrace []byte) {
	if workerID >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerID, poolName, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Pool %s] Panic: %v\nStack trace:\n%s",
			poolName, panicInfo, stackTrace)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus,
// StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance.
type Metrics interface {
	// RecordTaskDuration records how long a task body took to execute.
	RecordTaskDuration(poolName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordQueueDepth records the depth of one worker's queue. workerID is
	// -1 for queues not owned by a worker (the Executor's run queue).
	RecordQueueDepth(poolName string, workerID int, depth int)

	// RecordSteal records a steal attempt. stolen reports whether the
	// attempt took a task from the victim.
	RecordSteal(poolName string, stolen bool)

	// RecordTaskRejected records that a submission was rejected
	// (e.g., during shutdown).
	RecordTaskRejected(poolName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(poolName string, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(poolName string, workerID int, depth int) {
}

// RecordSteal is a no-op.
func (m *NilMetrics) RecordSteal(poolName string, stolen bool) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected submissions
// =============================================================================

// RejectedTaskHandler is called when a submission is rejected by the pool,
// which happens when the pool is shutting down or already stopped.
//
// Implementations must be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	// HandleRejectedTask is called when a submission is rejected.
	//
	// Parameters:
	// - poolName: The name of the pool
	// - reason: Why the submission was rejected (e.g., "shutdown")
	HandleRejectedTask(poolName string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejections.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected submission.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(poolName string, reason string) {
	fmt.Printf("[Pool %s] Task rejected: %s\n", poolName, reason)
}
