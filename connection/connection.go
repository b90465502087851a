// Package connection holds the database facade the benchmark workloads talk to.
//
// Every operation is addressed to a shard slot. In multi-database mode each
// slot owns its own database (benchmarks0, benchmarks1, ...); in single
// database mode all slots address benchmarks0 but still go through their own
// client, so concurrent workers never share a connection.
package connection

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	// AllShards routes a write to every database in multi-database mode and to
	// the shared database otherwise. Reads reject it.
	AllShards = -1

	// MaxShards is the number of shard slots a facade opens by default. It
	// bounds the largest usable concurrency level.
	MaxShards = 16

	DatabasePrefix = "benchmarks"
	CollectionName = "collection"
)

// Cursor is the subset of *mongo.Cursor the workloads need.
type Cursor interface {
	Next(ctx context.Context) bool
	Err() error
	Close(ctx context.Context) error
}

// Connection is the set of primitive operations workloads issue.
type Connection interface {
	Insert(ctx context.Context, shard int, doc bson.D) error
	InsertMany(ctx context.Context, shard int, docs []bson.D) error
	Update(ctx context.Context, shard int, filter, update bson.D, upsert, multi bool) error
	Remove(ctx context.Context, shard int, filter bson.D, justOne bool) error
	// FindOne returns nil without error when nothing matches.
	FindOne(ctx context.Context, shard int, filter, projection bson.D) (bson.D, error)
	Query(ctx context.Context, shard int, filter bson.D, limit, skip int64, projection bson.D) (Cursor, error)
	// Command reports whether the server answered ok.
	Command(ctx context.Context, shard int, cmd bson.D) (bool, error)
	EnsureIndex(ctx context.Context, shard int, keys bson.D) error
	CreateCollection(ctx context.Context, shard int, sizeBytes int64, capped bool) error
	ClearDatabase(ctx context.Context) error
	// Drain blocks until every operation previously issued on the shard has
	// been acknowledged and returns the first server error seen.
	Drain(ctx context.Context, shard int) error

	Iterations() int
	MultiDB() bool
	Shards() int
	Close(ctx context.Context) error
}

// DatabaseName returns the database a shard slot addresses.
func DatabaseName(shard int, multiDB bool) string {
	if !multiDB || shard < 0 {
		shard = 0
	}
	return fmt.Sprintf("%s%d", DatabasePrefix, shard)
}

// ItCount walks a cursor to the end and closes it.
func ItCount(ctx context.Context, cur Cursor) (int, error) {
	defer cur.Close(ctx)
	n := 0
	for cur.Next(ctx) {
		n++
	}
	return n, cur.Err()
}

// targets expands a shard argument into the slots an operation touches.
func targets(shard, shards int, multiDB bool) ([]int, error) {
	if shard == AllShards {
		if !multiDB {
			return []int{0}, nil
		}
		all := make([]int, shards)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if err := checkShard(shard, shards); err != nil {
		return nil, err
	}
	return []int{shard}, nil
}

func checkShard(shard, shards int) error {
	if shard < 0 || shard >= shards {
		return fmt.Errorf("shard %d out of range [0, %d)", shard, shards)
	}
	return nil
}
