package workloads

import (
	"context"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/connection"
)

func Remove() []benchmark.Workload {
	seedIDs := func(ctx context.Context, conn connection.Connection) error {
		return seed(ctx, conn, conn.Iterations(), intID)
	}
	seedX := func(ctx context.Context, conn connection.Connection) error {
		return seed(ctx, conn, conn.Iterations(), intX, key("x", 1))
	}
	return []benchmark.Workload{
		&workload{
			name:  "Remove.IntID",
			reset: seedIDs,
			run: eachKey(func(ctx context.Context, thread, i int, conn connection.Connection) error {
				return conn.Remove(ctx, thread, key("_id", i), false)
			}),
		},
		&workload{
			name:  "Remove.IntIDRange",
			reset: seedIDs,
			run:   removeRange("_id"),
		},
		&workload{
			name:  "Remove.IntNonID",
			reset: seedX,
			run: eachKey(func(ctx context.Context, thread, i int, conn connection.Connection) error {
				return conn.Remove(ctx, thread, key("x", i), false)
			}),
		},
		&workload{
			name:  "Remove.IntNonIDRange",
			reset: seedX,
			run:   removeRange("x"),
		},
	}
}

// removeRange deletes the thread's whole partition with one range remove.
func removeRange(field string) runFunc {
	return func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
		base, count := Partition(conn.Iterations(), thread, nthreads)
		return conn.Remove(ctx, thread, between(field, base, base+count), false)
	}
}
