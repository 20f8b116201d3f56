package core

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Composition combinators, all expressed purely in terms of OnComplete.
// Each allocates the downstream future it exclusively settles, so chains
// form without any goroutine parked on a wait. Go methods cannot introduce
// new type parameters, which is why these are package-level functions rather
// than methods on Future.

// Map returns a future resolved with fn applied to f's value. A rejection
// of f skips fn and propagates downstream; an error or panic from fn rejects
// the downstream future.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := newFutureWith[U](f.submitter())
	f.OnComplete(func(v T, err error) {
		if err != nil {
			out.tryFail(err)
			return
		}
		u, err := protect(func() (U, error) { return fn(v) })
		if err != nil {
			out.tryFail(err)
			return
		}
		out.tryComplete(u)
	})
	return out
}

// AndThen (flat-map) chains an asynchronous continuation: fn returns a new
// future whose outcome settles the downstream future. Rejections of f skip
// fn and propagate.
func AndThen[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	out := newFutureWith[U](f.submitter())
	f.OnComplete(func(v T, err error) {
		if err != nil {
			out.tryFail(err)
			return
		}
		next, err := protect(func() (*Future[U], error) { return fn(v), nil })
		if err != nil {
			out.tryFail(err)
			return
		}
		if next == nil {
			out.tryFail(&PanicError{Value: "forkjoin: AndThen continuation returned nil future"})
			return
		}
		next.OnComplete(func(u U, err error) {
			if err != nil {
				out.tryFail(err)
				return
			}
			out.tryComplete(u)
		})
	})
	return out
}

// Recover intercepts a rejection. A resolved f passes through untouched; a
// rejected f is replaced by fn's outcome, letting the chain continue with a
// recovered value.
func Recover[T any](f *Future[T], fn func(error) (T, error)) *Future[T] {
	out := newFutureWith[T](f.submitter())
	f.OnComplete(func(v T, err error) {
		if err == nil {
			out.tryComplete(v)
			return
		}
		recovered, rerr := protect(func() (T, error) { return fn(err) })
		if rerr != nil {
			out.tryFail(rerr)
			return
		}
		out.tryComplete(recovered)
	})
	return out
}

// All resolves with every future's value, in argument order, once all have
// resolved. The first rejection rejects the result; remaining outcomes are
// ignored.
func All[T any](fs ...*Future[T]) *Future[[]T] {
	var exec Submitter
	if len(fs) > 0 {
		exec = fs[0].submitter()
	}
	out := newFutureWith[[]T](exec)

	if len(fs) == 0 {
		out.tryComplete(nil)
		return out
	}

	var (
		mu      sync.Mutex
		values  = make([]T, len(fs))
		pending = int64(len(fs))
	)
	for i, f := range fs {
		i := i
		f.OnComplete(func(v T, err error) {
			if err != nil {
				out.tryFail(err)
				return
			}
			mu.Lock()
			values[i] = v
			mu.Unlock()
			if atomic.AddInt64(&pending, -1) == 0 {
				out.tryComplete(values)
			}
		})
	}
	return out
}

// protect runs fn, converting a panic into a PanicError.
func protect[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
