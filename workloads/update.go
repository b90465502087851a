package workloads

import (
	"context"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/connection"
)

// incTargets is the number of documents the Inc* workloads spread their
// increments over.
const incTargets = 100

var incCount = bson.D{{Key: "$inc", Value: bson.D{{Key: "count", Value: 1}}}}

func Update() []benchmark.Workload {
	countIndex := key("count", 1)
	secondary := key("i", 1)
	counters := func(i int) bson.D {
		return bson.D{{Key: "_id", Value: i}, {Key: "count", Value: 0}}
	}
	secondaryCounters := func(i int) bson.D {
		return bson.D{{Key: "_id", Value: i}, {Key: "i", Value: i}, {Key: "count", Value: 0}}
	}

	return []benchmark.Workload{
		&workload{
			name: "Update.IncNoIndexUpsert",
			run:  incEach("_id", true),
		},
		&workload{
			name: "Update.IncWithIndexUpsert",
			reset: func(ctx context.Context, conn connection.Connection) error {
				return seed(ctx, conn, 0, nil, countIndex)
			},
			run: incEach("_id", true),
		},
		&workload{
			name: "Update.IncNoIndex",
			reset: func(ctx context.Context, conn connection.Connection) error {
				return seed(ctx, conn, incTargets, counters)
			},
			run: incEach("_id", false),
		},
		&workload{
			name: "Update.IncWithIndex",
			reset: func(ctx context.Context, conn connection.Connection) error {
				return seed(ctx, conn, incTargets, counters, countIndex)
			},
			run: incEach("_id", false),
		},
		&workload{
			name: "Update.IncNoIndex_QueryOnSecondary",
			reset: func(ctx context.Context, conn connection.Connection) error {
				return seed(ctx, conn, incTargets, secondaryCounters, secondary)
			},
			run: incEach("i", false),
		},
		&workload{
			name: "Update.IncWithIndex_QueryOnSecondary",
			reset: func(ctx context.Context, conn connection.Connection) error {
				return seed(ctx, conn, incTargets, secondaryCounters, countIndex, secondary)
			},
			run: incEach("i", false),
		},
		mms("Update.MmsIncShallow1", "a"),
		mms("Update.MmsIncShallow2", "a", "z"),
		mms("Update.MmsIncDeep1", "h.23.59.n"),
		mms("Update.MmsIncDeepSharedPath2", "h.23.59.n", "h.23.59.t"),
		mms("Update.MmsIncDeepSharedPath3", "h.23.59.n", "h.23.59.t", "h.23.59.v"),
		mms("Update.MmsIncDeepDistinctPath2", "h.22.59.n", "h.23.59.t"),
		mms("Update.MmsIncDeepDistinctPath3", "h.21.59.n", "h.22.59.t", "h.23.59.v"),
	}
}

// incEach increments count on each of the incTargets documents, selected by
// field, iterations/nthreads/incTargets times.
func incEach(field string, upsert bool) runFunc {
	return func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
		incs := conn.Iterations() / nthreads / incTargets
		for i := 0; i < incTargets; i++ {
			for j := 0; j < incs; j++ {
				if err := conn.Update(ctx, thread, key(field, i), incCount, upsert, false); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// mmsDocument builds one document with a high branching factor:
// {_id: 0, a: 0, h: {"0": {"0": {n, t, v}, ... "59"}, ... "23"}, z: 0}.
func mmsDocument() bson.D {
	hours := make(bson.D, 0, 24)
	for h := 0; h < 24; h++ {
		minutes := make(bson.D, 0, 60)
		for m := 0; m < 60; m++ {
			minutes = append(minutes, bson.E{Key: strconv.Itoa(m), Value: bson.D{
				{Key: "n", Value: 0}, {Key: "t", Value: 0}, {Key: "v", Value: 0},
			}})
		}
		hours = append(hours, bson.E{Key: strconv.Itoa(h), Value: minutes})
	}
	return bson.D{
		{Key: "_id", Value: 0},
		{Key: "a", Value: 0},
		{Key: "h", Value: hours},
		{Key: "z", Value: 0},
	}
}

func mms(name string, fields ...string) *workload {
	inc := make(bson.D, len(fields))
	for i, f := range fields {
		inc[i] = bson.E{Key: f, Value: 1}
	}
	update := bson.D{{Key: "$inc", Value: inc}}
	return &workload{
		name: name,
		reset: func(ctx context.Context, conn connection.Connection) error {
			return seed(ctx, conn, 1, func(int) bson.D { return mmsDocument() })
		},
		run: func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
			for op := 0; op < conn.Iterations()/nthreads; op++ {
				if err := conn.Update(ctx, thread, key("_id", 0), update, false, false); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
