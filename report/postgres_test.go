package report

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	pgx.BatchResults
	err error
}

func (f fakeResults) Close() error { return f.err }

type fakePool struct {
	batches []int
	err     error
	closed  bool
}

func (f *fakePool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batches = append(f.batches, b.Len())
	return fakeResults{err: f.err}
}

func (f *fakePool) Close() { f.closed = true }

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pool := &fakePool{}
	store, err := NewPostgresStore(ctx, pool, "", RunInfo{Label: "nightly"})
	require.NoError(t, err)
	assert.Equal(t, `"bench_results"`, store.ident())
	// table and index
	assert.Equal(t, []int{2}, pool.batches)

	require.NoError(t, store.Write(ctx, insertEmpty))
	// one upsert per level
	assert.Equal(t, []int{2, 2}, pool.batches)

	pool.err = errors.New("connection reset")
	assert.ErrorContains(t, store.Write(ctx, insertEmpty), "connection reset")

	require.NoError(t, store.Close(ctx))
	assert.True(t, pool.closed)
}

func TestPostgresStore_CreateTableFails(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), &fakePool{err: errors.New("permission denied")}, "runs", RunInfo{})
	assert.ErrorContains(t, err, "permission denied")
}
