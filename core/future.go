package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// =============================================================================
// FutureState
// =============================================================================

type FutureState int32

const (
	// FuturePending: not yet settled.
	FuturePending FutureState = iota

	// FutureResolved: settled with a value. Terminal.
	FutureResolved

	// FutureRejected: settled with an error. Terminal.
	FutureRejected
)

func (s FutureState) String() string {
	switch s {
	case FuturePending:
		return "pending"
	case FutureResolved:
		return "resolved"
	case FutureRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// internal state word values. committing is a transient claim between the
// winning CAS and publication of the result; observers treat it as pending.
const (
	statePending uint32 = iota
	stateCommitting
	stateResolved
	stateRejected
)

// =============================================================================
// Submitter: where continuations run
// =============================================================================

// Submitter re-submits continuation work to a scheduler instead of invoking
// it on the completing goroutine's stack. Both Pool and Executor implement
// it. Trampolining through a Submitter is what keeps long continuation
// chains from growing the call stack without bound.
type Submitter interface {
	Dispatch(fn func())
}

// =============================================================================
// Future[T]
// =============================================================================

// Future is a single-assignment result cell. It settles exactly once, into
// either a value or an error, and runs registered callbacks on settlement.
//
// Callbacks registered before settlement run in registration order.
// Callbacks registered after settlement are dispatched immediately. In both
// cases invocation is routed through the future's Submitter when it has one;
// a standalone future (NewFuture) invokes callbacks inline on the
// registering or completing goroutine.
//
// A rejected future whose result is never observed is silently dropped;
// attach a callback or call Get to surface errors.
type Future[T any] struct {
	state atomic.Uint32
	done  chan struct{}

	mu        sync.Mutex
	callbacks []func(T, error)
	value     T
	err       error

	exec Submitter
}

// NewFuture creates a standalone future with inline callback dispatch.
func NewFuture[T any]() *Future[T] {
	return newFutureWith[T](nil)
}

// NewFutureWith creates a future whose callbacks are dispatched through the
// given Submitter.
func NewFutureWith[T any](exec Submitter) *Future[T] {
	return newFutureWith[T](exec)
}

func newFutureWith[T any](exec Submitter) *Future[T] {
	return &Future[T]{
		done: make(chan struct{}),
		exec: exec,
	}
}

// State returns the current state of the future.
func (f *Future[T]) State() FutureState {
	switch f.state.Load() {
	case stateResolved:
		return FutureResolved
	case stateRejected:
		return FutureRejected
	default:
		return FuturePending
	}
}

// Done returns a channel closed when the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Value returns the resolved value, or the zero value while pending or
// rejected. Only meaningful after Done is closed.
func (f *Future[T]) Value() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Err returns the rejection error, or nil while pending or resolved. Only
// meaningful after Done is closed.
func (f *Future[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Complete settles the future with a value. Returns ErrAlreadyCompleted if
// it was already settled.
func (f *Future[T]) Complete(v T) error {
	return f.settle(v, nil)
}

// Fail settles the future with an error. Returns ErrAlreadyCompleted if it
// was already settled.
func (f *Future[T]) Fail(err error) error {
	if err == nil {
		err = errors.New("forkjoin: future failed with nil error")
	}
	var zero T
	return f.settle(zero, err)
}

// tryComplete / tryFail are the propagation variants: losing the settlement
// race is expected and not an error for internal callers.
func (f *Future[T]) tryComplete(v T) bool {
	return f.settle(v, nil) == nil
}

func (f *Future[T]) tryFail(err error) bool {
	var zero T
	return f.settle(zero, err) == nil
}

// settle performs the single pending -> resolved/rejected transition. The
// CAS on the state word guarantees exactly one caller wins under concurrent
// completion attempts; everyone else gets ErrAlreadyCompleted.
func (f *Future[T]) settle(v T, err error) error {
	if !f.state.CompareAndSwap(statePending, stateCommitting) {
		return ErrAlreadyCompleted
	}

	f.mu.Lock()
	f.value = v
	f.err = err
	if err != nil {
		f.state.Store(stateRejected)
	} else {
		f.state.Store(stateResolved)
	}
	cbs := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	close(f.done)

	if len(cbs) > 0 {
		// One dispatch for the whole batch preserves registration order.
		f.dispatch(func() {
			for _, cb := range cbs {
				cb(v, err)
			}
		})
	}
	return nil
}

// OnComplete registers a callback invoked with the future's outcome. If the
// future is already settled the callback is dispatched immediately, without
// waiting for earlier callbacks still in flight.
func (f *Future[T]) OnComplete(cb func(val T, err error)) {
	f.mu.Lock()
	// stateCommitting still counts as pending here: settle holds the mutex
	// while publishing, so a callback appended under it is picked up by the
	// drain and can never be lost or run twice.
	s := f.state.Load()
	if s == statePending || s == stateCommitting {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()

	f.dispatch(func() {
		cb(v, err)
	})
}

// Get blocks until the future settles and returns its outcome. Intended for
// callers outside the pool; task bodies should prefer Join or OnComplete so
// workers keep executing ready work.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Value(), f.Err()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) dispatch(fn func()) {
	if f.exec != nil {
		f.exec.Dispatch(fn)
		return
	}
	fn()
}

// submitter exposes the future's dispatch target so combinators can keep
// downstream futures on the same scheduler.
func (f *Future[T]) submitter() Submitter {
	return f.exec
}
