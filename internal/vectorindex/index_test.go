package vectorindex

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_PutThenSearch_ReturnsNearest(t *testing.T) {
	idx := New(3, "", nil)

	require.NoError(t, idx.Put(1, []float32{1, 0, 0}))
	require.NoError(t, idx.Put(2, []float32{0, 1, 0}))
	require.NoError(t, idx.Put(3, []float32{0, 0, 1}))

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].Ordinal)
}

func TestIndex_DimensionMismatch_Errors(t *testing.T) {
	idx := New(3, "", nil)
	err := idx.Put(1, []float32{1, 0})
	assert.Error(t, err)
}

func TestIndex_Remove_ExcludesFromSearch(t *testing.T) {
	idx := New(2, "", nil)
	require.NoError(t, idx.Put(1, []float32{1, 0}))
	require.NoError(t, idx.Put(2, []float32{0, 1}))

	idx.Remove(1)

	results, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint64(1), r.Ordinal)
	}
}

func TestIndex_SearchFiltered_SkipsExcludedOrdinals(t *testing.T) {
	idx := New(2, "", nil)
	require.NoError(t, idx.Put(1, []float32{1, 0}))
	require.NoError(t, idx.Put(2, []float32{0.9, 0.1}))
	require.NoError(t, idx.Put(3, []float32{0.8, 0.2}))

	keep := func(ordinal uint64) bool { return ordinal != 1 }

	results, err := idx.SearchFiltered(context.Background(), []float32{1, 0}, 2, keep)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint64(1), r.Ordinal)
	}
}

func TestIndex_EmptyIndex_SearchReturnsNoResults(t *testing.T) {
	idx := New(4, "", nil)
	results, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_PurgeAll_EmptiesIndex(t *testing.T) {
	idx := New(2, "", nil)
	require.NoError(t, idx.Put(1, []float32{1, 0}))
	idx.PurgeAll()
	assert.Equal(t, 0, idx.Len())

	results, err := idx.Search(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_SaveThenLoad_RestoresVectors(t *testing.T) {
	dir := t.TempDir()
	idx := New(2, dir, nil)
	require.NoError(t, idx.Put(1, []float32{1, 0}))
	require.NoError(t, idx.Put(2, []float32{0, 1}))

	ctx := context.Background()
	require.NoError(t, idx.Save(ctx))

	loaded := New(2, dir, nil)
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, 2, loaded.Len())

	results, err := loaded.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].Ordinal)
}

func TestIndex_Load_MissingFile_IsNoop(t *testing.T) {
	dir := t.TempDir()
	_, err := os.Stat(dir)
	require.NoError(t, err)

	idx := New(2, dir, nil)
	require.NoError(t, idx.Load(context.Background()))
	assert.Equal(t, 0, idx.Len())
}
