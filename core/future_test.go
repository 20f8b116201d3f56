package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFutureCompleteAndGet(t *testing.T) {
	f := NewFuture[int]()
	if f.State() != FuturePending {
		t.Fatal("new future should be pending")
	}

	if err := f.Complete(42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.State() != FutureResolved {
		t.Error("expected resolved state")
	}

	v, err := f.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}

func TestFutureFailAndGet(t *testing.T) {
	want := errors.New("boom")
	f := NewFuture[string]()
	if err := f.Fail(want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.State() != FutureRejected {
		t.Error("expected rejected state")
	}

	v, err := f.Get(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if v != "" {
		t.Errorf("expected zero value, got %q", v)
	}
}

func TestFutureDoubleCompletionIsAnError(t *testing.T) {
	f := NewFuture[int]()
	if err := f.Complete(1); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}
	if err := f.Complete(2); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
	if err := f.Fail(errors.New("late")); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}

	// The first result is untouched.
	if v := f.Value(); v != 1 {
		t.Errorf("expected original value 1, got %d", v)
	}
	if f.Err() != nil {
		t.Errorf("expected nil error, got %v", f.Err())
	}
}

func TestFutureFailWithNilError(t *testing.T) {
	f := NewFuture[int]()
	if err := f.Fail(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.State() != FutureRejected {
		t.Error("expected rejected state")
	}
	if f.Err() == nil {
		t.Error("rejection must carry a non-nil error")
	}
}

func TestFutureConcurrentSettlementHasOneWinner(t *testing.T) {
	for iter := 0; iter < 200; iter++ {
		f := NewFuture[int]()

		var successes atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})

		for i := 0; i < 4; i++ {
			wg.Add(2)
			v := i
			go func() {
				defer wg.Done()
				<-start
				if f.Complete(v) == nil {
					successes.Add(1)
				}
			}()
			go func() {
				defer wg.Done()
				<-start
				if f.Fail(errors.New("racer")) == nil {
					successes.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if successes.Load() != 1 {
			t.Fatalf("iteration %d: expected exactly one settlement, got %d", iter, successes.Load())
		}
		// Value and Err stay consistent with the winning kind.
		if f.State() == FutureResolved && f.Err() != nil {
			t.Fatal("resolved future must not carry an error")
		}
		if f.State() == FutureRejected && f.Err() == nil {
			t.Fatal("rejected future must carry an error")
		}
	}
}

func TestFutureCallbackOrder(t *testing.T) {
	f := NewFuture[int]()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		idx := i
		f.OnComplete(func(v int, err error) {
			mu.Lock()
			order = append(order, idx)
			mu.Unlock()
		})
	}

	if err := f.Complete(7); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 10 {
		t.Fatalf("expected 10 callbacks, got %d", len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("callback order broken at %d: got %d", i, got)
		}
	}
}

func TestFutureCallbackAfterSettlementRunsImmediately(t *testing.T) {
	f := NewFuture[string]()
	if err := f.Fail(errors.New("already done")); err != nil {
		t.Fatal(err)
	}

	called := make(chan error, 1)
	f.OnComplete(func(v string, err error) {
		called <- err
	})

	select {
	case err := <-called:
		if err == nil {
			t.Error("callback should receive the rejection error")
		}
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestFutureCallbacksRunExactlyOnceUnderRacingRegistration(t *testing.T) {
	for iter := 0; iter < 200; iter++ {
		f := NewFuture[int]()

		const registrars = 4
		var calls atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})

		for i := 0; i < registrars; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				f.OnComplete(func(v int, err error) {
					calls.Add(1)
				})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = f.Complete(1)
		}()

		close(start)
		wg.Wait()

		// All registrations are in; each callback runs exactly once, either
		// via the settlement drain or the already-settled fast path.
		deadline := time.After(time.Second)
		for calls.Load() != registrars {
			select {
			case <-deadline:
				t.Fatalf("iteration %d: expected %d calls, got %d", iter, registrars, calls.Load())
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}
}

func TestFutureGetHonorsContextCancellation(t *testing.T) {
	f := NewFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if f.State() != FuturePending {
		t.Error("a cancelled Get must not settle the future")
	}
}

func TestFutureDoneClosesOnSettlement(t *testing.T) {
	f := NewFuture[int]()
	select {
	case <-f.Done():
		t.Fatal("done channel closed before settlement")
	default:
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = f.Complete(5)
	}()

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel never closed")
	}
	if f.Value() != 5 {
		t.Errorf("expected 5, got %d", f.Value())
	}
}

type recordingSubmitter struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingSubmitter) Dispatch(fn func()) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	fn()
}

func TestFutureDispatchesCallbacksThroughSubmitter(t *testing.T) {
	sub := &recordingSubmitter{}
	f := NewFutureWith[int](sub)

	ran := false
	f.OnComplete(func(v int, err error) { ran = true })
	if err := f.Complete(3); err != nil {
		t.Fatal(err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.calls == 0 {
		t.Error("callbacks should route through the submitter")
	}
	if !ran {
		t.Error("callback never ran")
	}
}
