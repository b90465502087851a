package workloads

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/connection"
)

func Command() []benchmark.Workload {
	threeValues := func(i int) bson.D { return key("x", i%3+1) }
	return []benchmark.Workload{
		readOnly("Commands.CountsIntIDRange",
			func(ctx context.Context, conn connection.Connection) error {
				return seed(ctx, conn, conn.Iterations(), intID)
			},
			func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
				base, count := Partition(conn.Iterations(), thread, nthreads)
				_, err := conn.Command(ctx, thread, bson.D{
					{Key: "count", Value: connection.CollectionName},
					{Key: "query", Value: between("_id", base, base+count)},
				})
				return err
			}),
		&workload{
			name: "Commands.FindAndModifyInserts",
			run: eachKey(func(ctx context.Context, thread, i int, conn connection.Connection) error {
				_, err := conn.Command(ctx, thread, bson.D{
					{Key: "findAndModify", Value: connection.CollectionName},
					{Key: "upsert", Value: true},
					{Key: "query", Value: key("_id", i)},
					{Key: "update", Value: key("_id", i)},
				})
				return err
			}),
		},
		readOnly("Commands.DistinctWithIndex",
			func(ctx context.Context, conn connection.Connection) error {
				return seed(ctx, conn, 3*conn.Iterations(), threeValues, key("x", 1))
			},
			distinctX),
		readOnly("Commands.DistinctWithoutIndex",
			func(ctx context.Context, conn connection.Connection) error {
				return seed(ctx, conn, 3*conn.Iterations(), threeValues)
			},
			distinctX),
	}
}

// countsFullCollection is registered with the query workloads.
func countsFullCollection() *workload {
	return readOnly("Commands.CountsFullCollection",
		func(ctx context.Context, conn connection.Connection) error {
			return seed(ctx, conn, conn.Iterations(), emptyDoc)
		},
		func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
			for i := 0; i < conn.Iterations()/nthreads; i++ {
				if _, err := conn.Command(ctx, thread, key("count", connection.CollectionName)); err != nil {
					return err
				}
			}
			return nil
		})
}

// distinctX runs 100 distinct commands per thread whatever the level.
func distinctX(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
	cmd := bson.D{
		{Key: "distinct", Value: connection.CollectionName},
		{Key: "key", Value: "x"},
		{Key: "query", Value: key("x", 2)},
	}
	for i := 0; i < 100; i++ {
		if _, err := conn.Command(ctx, thread, cmd); err != nil {
			return err
		}
	}
	return nil
}
