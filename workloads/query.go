package workloads

import (
	"context"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TreeWu/mongo-perf/benchmark"
	"github.com/TreeWu/mongo-perf/connection"
)

// Query returns the read-only query workloads. Their datasets are built once
// per sweep.
func Query() []benchmark.Workload {
	xIndex := key("x", 1)
	keyIndex := key("key", 1)
	xy := []bson.D{xIndex, key("y", 1)}

	seedN := func(doc func(int) bson.D, indexes ...bson.D) resetFunc {
		return func(ctx context.Context, conn connection.Connection) error {
			return seed(ctx, conn, conn.Iterations(), doc, indexes...)
		}
	}
	wide := seedN(wideDoc, keyIndex)
	nested := seedN(func(i int) bson.D {
		return append(bson.D{{Key: "key", Value: i}}, nestedDoc(10)...)
	}, keyIndex)
	elemMatch := seedN(func(i int) bson.D {
		return bson.D{{Key: "x", Value: i}, {Key: "arr", Value: bson.A{key("x", 1), key("x", 2), key("x", 3)}}}
	}, xIndex)
	xy2 := func(i int) bson.D { return bson.D{{Key: "x", Value: i}, {Key: "y", Value: 1}} }

	return []benchmark.Workload{
		readOnly("Queries.Empty", seedN(emptyDoc), chunkScan),
		readOnly("Queries.HundredTableScans", seedN(emptyDoc),
			func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
				for i := 0; i < 100/nthreads; i++ {
					if _, err := conn.FindOne(ctx, thread, key("does_not_exist", i), nil); err != nil {
						return err
					}
				}
				return nil
			}),
		readOnly("Queries.IntID", seedN(intID), chunkScan),
		readOnly("Queries.IntIDRange", seedN(intID), rangeScan("_id", nil)),
		readOnly("Queries.IntIDFindOne", seedN(intID), findEach("_id", nil)),
		readOnly("Queries.IntNonID", seedN(intX, xIndex), chunkScan),
		readOnly("Queries.IntNonIDRange", seedN(intX, xIndex), rangeScan("x", nil)),
		readOnly("Queries.IntNonIDFindOne", seedN(intX, xIndex), findEach("x", nil)),
		regexPrefixFindOne(seedN(func(i int) bson.D { return key("x", strconv.Itoa(i)) }, xIndex)),
		twoInts("Queries.TwoIntsBothBad", seedN(func(i int) bson.D {
			return bson.D{{Key: "x", Value: i % 503}, {Key: "y", Value: i % 509}}
		}, xy...), func(i, iterations int) (int, int) { return i % 503, i % 509 }),
		twoInts("Queries.TwoIntsBothGood", func(ctx context.Context, conn connection.Connection) error {
			n := conn.Iterations()
			return seed(ctx, conn, n, func(i int) bson.D {
				return bson.D{{Key: "x", Value: i}, {Key: "y", Value: n - i}}
			}, xy...)
		}, func(i, iterations int) (int, int) { return i, iterations - i }),
		twoInts("Queries.TwoIntsFirstGood", seedN(func(i int) bson.D {
			return bson.D{{Key: "x", Value: i}, {Key: "y", Value: i % 13}}
		}, xy...), func(i, iterations int) (int, int) { return i, i % 13 }),
		twoInts("Queries.TwoIntsSecondGood", seedN(func(i int) bson.D {
			return bson.D{{Key: "x", Value: i % 13}, {Key: "y", Value: i}}
		}, xy...), func(i, iterations int) (int, int) { return i % 13, i }),
		readOnly("Queries.ProjectionNoop", seedN(intX, xIndex), rangeScan("x", key("x", 1))),
		readOnly("Queries.ProjectionNoopFindOne", seedN(intX, xIndex), findEach("x", key("x", 1))),
		readOnly("Queries.ProjectionSingle", seedN(xy2, xIndex), rangeScan("x", key("x", 1))),
		readOnly("Queries.ProjectionSingleFindOne", seedN(xy2, xIndex), findEach("x", key("x", 1))),
		readOnly("Queries.ProjectionUnderscoreId", seedN(intX, xIndex), rangeScan("x", key("_id", 0))),
		readOnly("Queries.ProjectionUnderscoreIdFindOne", seedN(intX, xIndex), findEach("x", key("_id", 0))),
		readOnly("Queries.ProjectionWideDocNarrowProjection", wide, rangeScan("key", key("key", 1))),
		readOnly("Queries.ProjectionWideDocNarrowProjectionFindOne", wide, findEach("key", key("key", 1))),
		readOnly("Queries.ProjectionWideDocWideProjection", wide, rangeScan("key", key("key", 0))),
		readOnly("Queries.ProjectionWideDocWideProjectionFindOne", wide, findEach("key", key("key", 0))),
		readOnly("Queries.NestedProjectionFindOne<10,10>", nested, findEach("key", key(nestedPath(10), 0))),
		readOnly("Queries.NestedProjectionCursor<10,10>", nested, rangeScan("key", key(nestedPath(10), 0))),
		readOnly("Queries.ProjectionElemMatch", elemMatch, rangeScan("x", elemMatchX2)),
		readOnly("Queries.ProjectionElemMatchFindOne", elemMatch, findEach("x", elemMatchX2)),
		fakeDocsFindOne(),
		countsFullCollection(),
	}
}

var elemMatchX2 = bson.D{{Key: "arr", Value: bson.D{{Key: "$elemMatch", Value: key("x", 2)}}}}

func readOnly(name string, reset resetFunc, run runFunc) *workload {
	return &workload{name: name, readOnly: true, reset: reset, run: run}
}

// chunkScan reads the thread's chunk of the whole collection through one
// cursor using limit and skip.
func chunkScan(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
	base, count := Partition(conn.Iterations(), thread, nthreads)
	cur, err := conn.Query(ctx, thread, bson.D{}, int64(count), int64(base), nil)
	if err != nil {
		return err
	}
	_, err = connection.ItCount(ctx, cur)
	return err
}

// rangeScan reads the thread's partition of field through one range query.
func rangeScan(field string, projection bson.D) runFunc {
	return func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
		base, count := Partition(conn.Iterations(), thread, nthreads)
		cur, err := conn.Query(ctx, thread, between(field, base, base+count), 0, 0, projection)
		if err != nil {
			return err
		}
		_, err = connection.ItCount(ctx, cur)
		return err
	}
}

// findEach issues one findOne per key in the thread's partition.
func findEach(field string, projection bson.D) runFunc {
	return eachKey(func(ctx context.Context, thread, i int, conn connection.Connection) error {
		_, err := conn.FindOne(ctx, thread, key(field, i), projection)
		return err
	})
}

func regexPrefixFindOne(reset resetFunc) *workload {
	var prefixes [100]bson.D
	for i := range prefixes {
		prefixes[i] = key("x", primitive.Regex{Pattern: "^" + strconv.Itoa(i+1)})
	}
	return readOnly("Queries.RegexPrefixFindOne", reset,
		func(ctx context.Context, thread, nthreads int, conn connection.Connection) error {
			for i := 0; i < conn.Iterations()/nthreads/100; i++ {
				for _, filter := range prefixes {
					if _, err := conn.FindOne(ctx, thread, filter, nil); err != nil {
						return err
					}
				}
			}
			return nil
		})
}

func twoInts(name string, reset resetFunc, values func(i, iterations int) (x, y int)) *workload {
	return readOnly(name, reset, eachKey(func(ctx context.Context, thread, i int, conn connection.Connection) error {
		x, y := values(i, conn.Iterations())
		_, err := conn.FindOne(ctx, thread, bson.D{{Key: "x", Value: x}, {Key: "y", Value: y}}, nil)
		return err
	}))
}

// wideFields are the 676 two letter field names "aa", "ba", ... "zz".
var wideFields = func() []string {
	names := make([]string, 0, 26*26)
	for second := 'a'; second <= 'z'; second++ {
		for first := 'a'; first <= 'z'; first++ {
			names = append(names, string([]rune{first, second}))
		}
	}
	return names
}()

func wideDoc(i int) bson.D {
	doc := make(bson.D, 0, len(wideFields)+1)
	doc = append(doc, bson.E{Key: "key", Value: i})
	for _, f := range wideFields {
		doc = append(doc, bson.E{Key: f, Value: 1})
	}
	return doc
}

// nestedDoc returns {a: {a: ... {}, b: 1}, b: 1} nested depth levels deep.
func nestedDoc(depth int) bson.D {
	if depth == 0 {
		return bson.D{}
	}
	return bson.D{{Key: "a", Value: nestedDoc(depth - 1)}, {Key: "b", Value: 1}}
}

// nestedPath is "a.a. ... .a" with depth components.
func nestedPath(depth int) string {
	return strings.TrimSuffix(strings.Repeat("a.", depth), ".")
}
