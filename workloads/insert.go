package workloads

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/connection"
	"github.com/TreeWu/mongo-perf/value"
)

// cappedSize is the byte size of the capped collection Insert.EmptyCapped
// writes into.
const cappedSize = 32 * 1024

func Insert() []benchmark.Workload {
	return []benchmark.Workload{
		insertEach("Insert.Empty", emptyDoc),
		emptyBatched(2),
		emptyBatched(10),
		emptyBatched(100),
		emptyBatched(1000),
		&workload{
			name: "Insert.EmptyCapped",
			reset: func(ctx context.Context, conn connection.Connection) error {
				if err := conn.ClearDatabase(ctx); err != nil {
					return err
				}
				if err := conn.CreateCollection(ctx, connection.AllShards, cappedSize, true); err != nil {
					return err
				}
				return conn.Drain(ctx, connection.AllShards)
			},
			run: eachKey(func(ctx context.Context, thread, i int, conn connection.Connection) error {
				return conn.Insert(ctx, thread, bson.D{})
			}),
		},
		insertEach("Insert.JustID", func(i int) bson.D {
			return key("_id", primitive.NewObjectID())
		}),
		insertEach("Insert.IntID", intID),
		&workload{
			name: "Insert.IntIDUpsert",
			run: eachKey(func(ctx context.Context, thread, i int, conn connection.Connection) error {
				return conn.Update(ctx, thread, key("_id", i), bson.D{}, true, false)
			}),
		},
		insertEach("Insert.JustNum", intX),
		&workload{
			name: "Insert.JustNumIndexedBefore",
			run: func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
				if err := conn.EnsureIndex(ctx, thread, key("x", 1)); err != nil {
					return err
				}
				return eachKey(insertKey(intX))(ctx, thread, nthreads, conn)
			},
		},
		&workload{
			name: "Insert.JustNumIndexedAfter",
			run: func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
				if err := eachKey(insertKey(intX))(ctx, thread, nthreads, conn); err != nil {
					return err
				}
				return conn.EnsureIndex(ctx, thread, key("x", 1))
			},
		},
		insertEach("Insert.NumAndID", func(i int) bson.D {
			return bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "x", Value: i}}
		}),
		&workload{
			name: "Insert.FakeDocs",
			run: func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
				h := value.NewSeededHandler(int64(thread) + 1)
				return eachKey(insertKey(func(i int) bson.D {
					return fakeDoc(h, i)
				}))(ctx, thread, nthreads, conn)
			},
		},
	}
}

type keyFunc func(ctx context.Context, thread, i int, conn connection.Connection) error

// eachKey calls fn for every key in the thread's partition.
func eachKey(fn keyFunc) runFunc {
	return func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
		base, count := Partition(conn.Iterations(), thread, nthreads)
		for i := base; i < base+count; i++ {
			if err := fn(ctx, thread, i, conn); err != nil {
				return err
			}
		}
		return nil
	}
}

func insertKey(doc func(i int) bson.D) keyFunc {
	return func(ctx context.Context, thread, i int, conn connection.Connection) error {
		return conn.Insert(ctx, thread, doc(i))
	}
}

func insertEach(name string, doc func(i int) bson.D) *workload {
	return &workload{name: name, run: eachKey(insertKey(doc))}
}

func emptyBatched(size int) *workload {
	return &workload{
		name: fmt.Sprintf("Insert.EmptyBatched<%d>", size),
		run: func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
			docs := make([]bson.D, size)
			for i := range docs {
				docs[i] = bson.D{}
			}
			for i := 0; i < conn.Iterations()/size/nthreads; i++ {
				if err := conn.InsertMany(ctx, thread, docs); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
