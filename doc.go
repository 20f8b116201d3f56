// Package forkjoin provides a work-stealing fork-join scheduler with
// composable futures for Go.
//
// A fixed pool of workers each owns a double-ended work queue. Workers pop
// their own queue LIFO for locality and, when empty, steal the oldest task
// from a random peer FIFO, so idle workers pull work toward themselves
// instead of contending on a central queue.
//
// # Quick Start
//
// Create and start a pool:
//
//	pool := forkjoin.NewPool(forkjoin.DefaultConfig())
//	pool.Start(context.Background())
//	defer pool.Stop()
//
// Submit a root task and wait for its result:
//
//	task, _ := forkjoin.Submit(pool, func(ctx context.Context) (int, error) {
//		return expensiveComputation(ctx)
//	})
//	v, err := task.Join(context.Background())
//
// # Fork and Join
//
// Inside a task body, Fork pushes sub-tasks onto the calling worker's own
// queue and Join waits for them cooperatively: a joining worker never sits
// idle, it keeps executing ready tasks (its own queue or steals) until the
// awaited task resolves. That is what lets recursion depth exceed the worker
// count without deadlocking the pool:
//
//	func fib(ctx context.Context, n int) (int, error) {
//		if n < 2 {
//			return n, nil
//		}
//		left, err := forkjoin.Fork(ctx, func(ctx context.Context) (int, error) {
//			return fib(ctx, n-1)
//		})
//		if err != nil {
//			return 0, err
//		}
//		b, err := fib(ctx, n-2)
//		if err != nil {
//			return 0, err
//		}
//		a, err := left.Join(ctx)
//		return a + b, err
//	}
//
// # Futures and Continuations
//
// Every task carries a Future: a single-assignment cell that settles exactly
// once with a value or an error. Continuations attach with OnComplete and
// compose with Map, AndThen and Recover; they are re-submitted to the
// scheduler rather than run on the completing goroutine, so long chains
// never grow the stack and never dedicate a goroutine to waiting:
//
//	doubled := forkjoin.Map(task.Future(), func(v int) (int, error) {
//		return v * 2, nil
//	})
//
// # Error Handling
//
// A failing or panicking task never takes its worker down: the error is
// captured in the task's future, wrapped with the task's identity, and
// observed by whoever joins the task or reads the chain's terminal future.
// A rejected future nobody observes is dropped silently.
//
// For plain fire-and-forget execution without fork/join semantics, see
// Executor.
package forkjoin
