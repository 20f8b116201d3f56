// Command forkjoin-bench runs small fork-join workloads against a pool
// and reports timing and pool statistics.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stealpool/forkjoin"
)

func main() {
	app := &cli.App{
		Name:  "forkjoin-bench",
		Usage: "benchmark fork-join workloads on a work-stealing pool",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "workers",
				Usage: "number of pool workers (0 = GOMAXPROCS)",
				Value: 0,
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "print pool statistics after the run",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "fib",
				Usage: "recursively compute a Fibonacci number",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "n",
						Usage: "Fibonacci index",
						Value: 25,
					},
				},
				Action: runFib,
			},
			{
				Name:  "sum",
				Usage: "sum a random slice by recursive halving",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "size",
						Usage: "slice length",
						Value: 1_000_000,
					},
					&cli.IntFlag{
						Name:  "threshold",
						Usage: "sequential cutoff",
						Value: 4096,
					},
				},
				Action: runSum,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newPool(c *cli.Context) *forkjoin.Pool {
	cfg := forkjoin.DefaultConfig()
	cfg.Name = "bench"
	if w := c.Int("workers"); w > 0 {
		cfg.Workers = w
	}
	pool := forkjoin.NewPool(cfg)
	pool.Start(context.Background())
	return pool
}

func finish(c *cli.Context, pool *forkjoin.Pool, started time.Time) {
	elapsed := time.Since(started)
	fmt.Printf("elapsed: %v\n", elapsed)
	if c.Bool("stats") {
		stats := pool.Stats()
		fmt.Printf("workers: %d  steals: %d\n", stats.Workers, stats.Steals)
		for _, ws := range pool.WorkerStats() {
			fmt.Printf("  worker %d: executed=%d steals=%d\n", ws.Index, ws.Executed, ws.Steals)
		}
	}
	pool.Stop()
}

func runFib(c *cli.Context) error {
	n := c.Int("n")
	if n < 0 {
		return fmt.Errorf("n must be non-negative, got %d", n)
	}

	pool := newPool(c)
	started := time.Now()

	task, err := forkjoin.Submit(pool, func(ctx context.Context) (uint64, error) {
		return fib(ctx, uint64(n))
	})
	if err != nil {
		return err
	}
	v, err := task.Join(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("fib(%d) = %d\n", n, v)
	finish(c, pool, started)
	return nil
}

func fib(ctx context.Context, n uint64) (uint64, error) {
	if n < 2 {
		return n, nil
	}
	left, err := forkjoin.Fork(ctx, func(ctx context.Context) (uint64, error) {
		return fib(ctx, n-1)
	})
	if err != nil {
		return 0, err
	}
	right, err := fib(ctx, n-2)
	if err != nil {
		return 0, err
	}
	lv, err := left.Join(ctx)
	if err != nil {
		return 0, err
	}
	return lv + right, nil
}

func runSum(c *cli.Context) error {
	size := c.Int("size")
	threshold := c.Int("threshold")
	if threshold < 1 {
		threshold = 1
	}

	rng := rand.New(rand.NewSource(1))
	data := make([]int64, size)
	var want int64
	for i := range data {
		data[i] = int64(rng.Intn(1000))
		want += data[i]
	}

	pool := newPool(c)
	started := time.Now()

	task, err := forkjoin.Submit(pool, func(ctx context.Context) (int64, error) {
		return sum(ctx, data, threshold)
	})
	if err != nil {
		return err
	}
	got, err := task.Join(context.Background())
	if err != nil {
		return err
	}

	if got != want {
		return fmt.Errorf("sum mismatch: got %d, want %d", got, want)
	}
	fmt.Printf("sum of %d elements = %d (GOMAXPROCS=%d)\n", size, got, runtime.GOMAXPROCS(0))
	finish(c, pool, started)
	return nil
}

func sum(ctx context.Context, data []int64, threshold int) (int64, error) {
	if len(data) <= threshold {
		var s int64
		for _, v := range data {
			s += v
		}
		return s, nil
	}
	mid := len(data) / 2
	left, err := forkjoin.Fork(ctx, func(ctx context.Context) (int64, error) {
		return sum(ctx, data[:mid], threshold)
	})
	if err != nil {
		return 0, err
	}
	rv, err := sum(ctx, data[mid:], threshold)
	if err != nil {
		return 0, err
	}
	lv, err := left.Join(ctx)
	if err != nil {
		return 0, err
	}
	return lv + rv, nil
}
