package connection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func intIDs(docs []bson.D) []int64 {
	var ids []int64
	for _, d := range docs {
		v, _ := lookup(d, "_id")
		f, _ := toFloat(v)
		ids = append(ids, int64(f))
	}
	return ids
}

func TestMemory_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{Iterations: 10, Shards: 2})

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Insert(ctx, AllShards, bson.D{{Key: "_id", Value: i}, {Key: "x", Value: i * 2}}))
	}
	assert.Equal(t, 10, m.Count(0))
	// single database mode, both slots share the namespace
	assert.Equal(t, 10, m.Count(1))

	cur, err := m.Query(ctx, 1, bson.D{{Key: "x", Value: bson.D{{Key: "$gte", Value: 4}, {Key: "$lt", Value: 10}}}}, 0, 0, nil)
	require.NoError(t, err)
	n, err := ItCount(ctx, cur)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cur, err = m.Query(ctx, 0, bson.D{}, 4, 2, nil)
	require.NoError(t, err)
	var got []bson.D
	mc := cur.(*MemoryCursor)
	for mc.Next(ctx) {
		got = append(got, mc.Current())
	}
	assert.Equal(t, []int64{2, 3, 4, 5}, intIDs(got))

	doc, err := m.FindOne(ctx, 0, bson.D{{Key: "_id", Value: 7}}, nil)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.EqualValues(t, 14, doc.Map()["x"])

	doc, err = m.FindOne(ctx, 0, bson.D{{Key: "does_not_exist", Value: 1}}, nil)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestMemory_MultiDB(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{MultiDB: true, Shards: 3})

	require.NoError(t, m.Insert(ctx, AllShards, bson.D{{Key: "x", Value: 1}}))
	require.NoError(t, m.Insert(ctx, 2, bson.D{{Key: "x", Value: 2}}))

	assert.Equal(t, 1, m.Count(0))
	assert.Equal(t, 1, m.Count(1))
	assert.Equal(t, 2, m.Count(2))

	require.NoError(t, m.ClearDatabase(ctx))
	assert.Zero(t, m.Count(2))
}

func TestMemory_DuplicateKey(t *testing.T) {
	ctx := context.Background()

	t.Run("acknowledged", func(t *testing.T) {
		m := NewMemory(MemoryConfig{WriteConcern: true})
		require.NoError(t, m.Insert(ctx, 0, bson.D{{Key: "_id", Value: 1}}))
		err := m.Insert(ctx, 0, bson.D{{Key: "_id", Value: int64(1)}})
		assert.True(t, errors.Is(err, ErrDuplicateKey))
	})

	t.Run("unacknowledged surfaces on drain", func(t *testing.T) {
		m := NewMemory(MemoryConfig{})
		require.NoError(t, m.Insert(ctx, 3, bson.D{{Key: "_id", Value: 1}}))
		require.NoError(t, m.Insert(ctx, 3, bson.D{{Key: "_id", Value: 1}}))
		assert.NoError(t, m.Drain(ctx, 0))
		assert.ErrorIs(t, m.Drain(ctx, 3), ErrDuplicateKey)
		assert.NoError(t, m.Drain(ctx, 3))
	})

	t.Run("fixture writes fail immediately", func(t *testing.T) {
		m := NewMemory(MemoryConfig{MultiDB: true})
		doc := bson.D{{Key: "_id", Value: 1}}
		require.NoError(t, m.InsertMany(ctx, AllShards, []bson.D{doc}))
		err := m.InsertMany(ctx, AllShards, []bson.D{doc})
		assert.ErrorIs(t, err, ErrDuplicateKey)
		assert.NoError(t, m.Drain(ctx, AllShards))
	})
}

func TestMemory_Update(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{WriteConcern: true})

	inc := bson.D{{Key: "$inc", Value: bson.D{{Key: "count", Value: 1}}}}
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Update(ctx, 0, bson.D{{Key: "_id", Value: 9}}, inc, true, false))
	}
	doc, err := m.FindOne(ctx, 0, bson.D{{Key: "_id", Value: 9}}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 5, doc.Map()["count"])

	// upsert with an empty replacement keeps the filter's _id
	require.NoError(t, m.Update(ctx, 0, bson.D{{Key: "_id", Value: 10}}, bson.D{}, true, false))
	assert.Equal(t, 2, m.Count(0))

	// no upsert, no match, no insert
	require.NoError(t, m.Update(ctx, 0, bson.D{{Key: "_id", Value: 11}}, inc, false, false))
	assert.Equal(t, 2, m.Count(0))

	err = m.Update(ctx, 0, bson.D{{Key: "_id", Value: 9}}, bson.D{{Key: "$set", Value: bson.D{{Key: "_id", Value: 1}}}}, false, false)
	assert.ErrorIs(t, err, ErrImmutableID)
}

func TestMemory_DeepIncrement(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{WriteConcern: true})

	require.NoError(t, m.Insert(ctx, 0, bson.D{
		{Key: "_id", Value: 0},
		{Key: "h", Value: bson.D{{Key: "23", Value: bson.D{{Key: "59", Value: bson.D{{Key: "n", Value: 0}}}}}}},
	}))
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "h.23.59.n", Value: 1}, {Key: "h.22.59.t", Value: 1}}}}
	require.NoError(t, m.Update(ctx, 0, bson.D{{Key: "_id", Value: 0}}, update, false, false))
	require.NoError(t, m.Update(ctx, 0, bson.D{{Key: "_id", Value: 0}}, update, false, false))

	doc, err := m.FindOne(ctx, 0, bson.D{{Key: "_id", Value: 0}}, nil)
	require.NoError(t, err)
	n, _ := lookup(doc, "h.23.59.n")
	tv, _ := lookup(doc, "h.22.59.t")
	assert.EqualValues(t, 2, n)
	assert.EqualValues(t, 2, tv)
}

func TestMemory_Remove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{WriteConcern: true})

	var docs []bson.D
	for i := 0; i < 20; i++ {
		docs = append(docs, bson.D{{Key: "x", Value: i}})
	}
	require.NoError(t, m.InsertMany(ctx, AllShards, docs))

	require.NoError(t, m.Remove(ctx, 0, bson.D{{Key: "x", Value: 3}}, false))
	require.NoError(t, m.Remove(ctx, 0, bson.D{{Key: "x", Value: bson.D{{Key: "$gte", Value: 10}, {Key: "$lt", Value: 15}}}}, false))
	assert.Equal(t, 14, m.Count(0))

	require.NoError(t, m.Remove(ctx, 0, bson.D{{Key: "x", Value: bson.D{{Key: "$gte", Value: 15}}}}, true))
	assert.Equal(t, 13, m.Count(0))
}

func TestMemory_Projection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{WriteConcern: true})
	require.NoError(t, m.Insert(ctx, 0, bson.D{
		{Key: "_id", Value: 1},
		{Key: "x", Value: 1},
		{Key: "y", Value: 1},
		{Key: "a", Value: bson.D{{Key: "a", Value: bson.D{}}, {Key: "b", Value: 1}}},
		{Key: "arr", Value: bson.A{bson.D{{Key: "x", Value: 1}}, bson.D{{Key: "x", Value: 2}}, bson.D{{Key: "x", Value: 3}}}},
	}))
	filter := bson.D{{Key: "x", Value: 1}}

	doc, err := m.FindOne(ctx, 0, filter, bson.D{{Key: "x", Value: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "x"}, keys(doc))

	doc, err = m.FindOne(ctx, 0, filter, bson.D{{Key: "_id", Value: 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "a", "arr"}, keys(doc))

	doc, err = m.FindOne(ctx, 0, filter, bson.D{{Key: "a.a", Value: 0}})
	require.NoError(t, err)
	nested, _ := lookup(doc, "a")
	assert.Equal(t, []string{"b"}, keys(nested.(bson.D)))

	doc, err = m.FindOne(ctx, 0, filter, bson.D{{Key: "arr", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "x", Value: 2}}}}}})
	require.NoError(t, err)
	arr, _ := lookup(doc, "arr")
	require.Len(t, arr, 1)
	v, _ := lookup(arr.(bson.A)[0], "x")
	assert.EqualValues(t, 2, v)
}

func TestMemory_Regex(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{WriteConcern: true})
	for _, s := range []string{"1", "10", "21", "100"} {
		require.NoError(t, m.Insert(ctx, 0, bson.D{{Key: "x", Value: s}}))
	}
	cur, err := m.Query(ctx, 0, bson.D{{Key: "x", Value: primitive.Regex{Pattern: "^1"}}}, 0, 0, nil)
	require.NoError(t, err)
	n, err := ItCount(ctx, cur)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemory_Capped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{WriteConcern: true})
	require.NoError(t, m.CreateCollection(ctx, AllShards, 1024, true))
	assert.ErrorIs(t, m.CreateCollection(ctx, 0, 1024, true), ErrNamespaceExists)

	for i := 0; i < 500; i++ {
		require.NoError(t, m.Insert(ctx, 0, bson.D{}))
	}
	assert.Less(t, m.Count(0), 500)
	assert.Greater(t, m.Count(0), 0)
}

func TestMemory_Commands(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{WriteConcern: true})

	for i := 0; i < 3; i++ {
		ok, err := m.Command(ctx, 0, bson.D{
			{Key: "findAndModify", Value: CollectionName},
			{Key: "upsert", Value: true},
			{Key: "query", Value: bson.D{{Key: "_id", Value: i}}},
			{Key: "update", Value: bson.D{{Key: "_id", Value: i}}},
		})
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 3, m.Count(0))

	ok, err := m.Command(ctx, 0, bson.D{{Key: "count", Value: CollectionName}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Command(ctx, 0, bson.D{{Key: "distinct", Value: CollectionName}, {Key: "key", Value: "x"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Command(ctx, 0, bson.D{{Key: "noSuchCommand", Value: 1}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_EnsureIndex(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{MultiDB: true, Shards: 2})
	require.NoError(t, m.EnsureIndex(ctx, AllShards, bson.D{{Key: "x", Value: 1}}))
	require.NoError(t, m.EnsureIndex(ctx, 1, bson.D{{Key: "x", Value: 1}}))
	assert.Len(t, m.Indexes(0), 1)
	assert.Len(t, m.Indexes(1), 1)
}

func keys(doc bson.D) []string {
	var out []string
	for _, e := range doc {
		out = append(out, e.Key)
	}
	return out
}

func TestMemory_RejectsUnsupportedOperators(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(MemoryConfig{WriteConcern: true})
	require.NoError(t, m.Insert(ctx, 0, bson.D{{Key: "x", Value: 1}}))

	_, err := m.FindOne(ctx, 0, bson.D{{Key: "x", Value: bson.D{{Key: "$mod", Value: bson.A{2, 1}}}}}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFilter)

	_, err = m.Query(ctx, 0, bson.D{{Key: "$nor", Value: bson.A{bson.D{{Key: "x", Value: 2}}}}}, 0, 0, nil)
	assert.ErrorIs(t, err, ErrUnsupportedFilter)
}
