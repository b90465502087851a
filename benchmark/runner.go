package benchmark

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TreeWu/mongo-perf/connection"
)

// RunConcurrent runs w on n workers and returns the elapsed seconds for the
// whole cohort. Worker i calls w.Run(ctx, i, n, conn) and then drains shard i.
//
// The clock starts before the first worker is launched, so goroutine start
// up is measured at every level, one thread included. All workers are joined
// before returning. When any of them fails the first error by completion is
// returned and no time is reported.
func RunConcurrent(ctx context.Context, w Workload, n int, conn connection.Connection) (float64, error) {
	if n < 1 {
		return 0, fmt.Errorf("thread count must be positive, got %d", n)
	}

	// No WithContext: a failing worker must not cancel its siblings.
	var g errgroup.Group
	start := time.Now()
	for i := 0; i < n; i++ {
		thread := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &WorkerError{Thread: thread, Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			if err := w.Run(ctx, thread, n, conn); err != nil {
				return &WorkerError{Thread: thread, Err: err}
			}
			if err := conn.Drain(ctx, thread); err != nil {
				return &WorkerError{Thread: thread, Err: fmt.Errorf("drain: %w", err)}
			}
			return nil
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)
	if err != nil {
		return 0, err
	}
	return seconds(elapsed), nil
}

// seconds truncates to microseconds and never returns less than one.
func seconds(d time.Duration) float64 {
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	return float64(us) / 1e6
}
