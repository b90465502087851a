// Package workloads is the catalogue of benchmark cases, grouped by category.
package workloads

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/connection"
)

const fixtureBatch = 1000

type resetFunc func(ctx context.Context, conn connection.Connection) error
type runFunc func(ctx context.Context, thread, nthreads int, conn connection.Connection) error

// workload binds a name and a read-only declaration to reset and run steps.
type workload struct {
	name     string
	readOnly bool
	reset    resetFunc
	run      runFunc
}

var _ benchmark.Workload = (*workload)(nil)

func (w *workload) Name() string   { return w.name }
func (w *workload) ReadOnly() bool { return w.readOnly }

func (w *workload) Reset(ctx context.Context, conn connection.Connection) error {
	if w.reset == nil {
		return clearDB(ctx, conn)
	}
	return w.reset(ctx, conn)
}

func (w *workload) Run(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
	return w.run(ctx, thread, nthreads, conn)
}

// Partition returns the first key and the number of keys a thread owns when
// iterations are split evenly between nthreads. Remainders are dropped.
func Partition(iterations, thread, nthreads int) (base, count int) {
	count = iterations / nthreads
	return thread * count, count
}

func clearDB(ctx context.Context, conn connection.Connection) error {
	if err := conn.ClearDatabase(ctx); err != nil {
		return err
	}
	return conn.Drain(ctx, connection.AllShards)
}

// seed clears the databases, builds the indexes and inserts n fixture
// documents into every shard's collection.
func seed(ctx context.Context, conn connection.Connection, n int, doc func(i int) bson.D, indexes ...bson.D) error {
	if err := conn.ClearDatabase(ctx); err != nil {
		return err
	}
	for _, keys := range indexes {
		if err := conn.EnsureIndex(ctx, connection.AllShards, keys); err != nil {
			return fmt.Errorf("ensure index %v: %w", keys, err)
		}
	}
	batch := make([]bson.D, 0, fixtureBatch)
	for i := 0; i < n; i++ {
		batch = append(batch, doc(i))
		if len(batch) == fixtureBatch {
			if err := conn.InsertMany(ctx, connection.AllShards, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := conn.InsertMany(ctx, connection.AllShards, batch); err != nil {
			return err
		}
	}
	return conn.Drain(ctx, connection.AllShards)
}

func key(k string, v interface{}) bson.D {
	return bson.D{{Key: k, Value: v}}
}

func between(k string, lo, hi int) bson.D {
	return bson.D{{Key: k, Value: bson.D{{Key: "$gte", Value: lo}, {Key: "$lt", Value: hi}}}}
}

func emptyDoc(int) bson.D { return bson.D{} }
func intID(i int) bson.D  { return key("_id", i) }
func intX(i int) bson.D   { return key("x", i) }

// Categories lists the category names accepted by ForCategory, in run order.
func Categories() []string {
	return []string{"overhead", "insert", "remove", "update", "query", "command"}
}

var builders = map[string]func() []benchmark.Workload{
	"overhead": Overhead,
	"insert":   Insert,
	"remove":   Remove,
	"update":   Update,
	"query":    Query,
	"command":  Command,
}

// ForCategory returns fresh workloads for one category, or for all of them
// when name is empty.
func ForCategory(name string) ([]benchmark.Workload, error) {
	if name == "" {
		return All(), nil
	}
	build, ok := builders[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown test category %q, want one of %s", name, strings.Join(Categories(), ", "))
	}
	return build(), nil
}

// All returns the full catalogue in run order.
func All() []benchmark.Workload {
	var all []benchmark.Workload
	for _, c := range Categories() {
		all = append(all, builders[c]()...)
	}
	return all
}

// Overhead measures the harness itself.
func Overhead() []benchmark.Workload {
	return []benchmark.Workload{
		&workload{
			name: "Overhead.DoNothing",
			run: func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
				return nil
			},
		},
	}
}
