package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(Config{
		Path:          "",
		Dimension:     4,
		FlushInterval: 20 * time.Millisecond,
		BatchSize:     2,
		MaxBuffer:     10,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

func TestCache_PutThenGet_HitsL1Immediately(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	v := []float32{1, 0, 0, 0}
	c.Put(42, v)

	got, ok := c.Get(ctx, 42)
	require.True(t, ok)
	assert.Equal(t, v, got)
}

func TestCache_Get_MissReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Get(context.Background(), 999)
	assert.False(t, ok)
}

func TestCache_FlushPersistsToL2(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Put(1, []float32{0.5, 0.5, 0.5, 0.5})
	require.NoError(t, c.Flush(ctx))

	n, err := c.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_L2HitPromotesIntoL1(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Put(7, []float32{1, 1, 1, 1})
	require.NoError(t, c.Flush(ctx))

	c.l1.Purge()

	got, ok := c.Get(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 1, 1, 1}, got)

	_, ok = c.l1.Get(7)
	assert.True(t, ok, "L2 hit should promote into L1")
}

func TestCache_GetAll_MixedHitsAndMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Put(1, []float32{1, 0, 0, 0})
	c.Put(2, []float32{0, 1, 0, 0})
	require.NoError(t, c.Flush(ctx))
	c.l1.Purge()
	c.Put(1, []float32{1, 0, 0, 0}) // warm L1 for fp 1 only

	out := c.GetAll(ctx, []uint64{1, 2, 3})
	assert.Len(t, out, 2)
	assert.Contains(t, out, uint64(1))
	assert.Contains(t, out, uint64(2))
	assert.NotContains(t, out, uint64(3))
}

func TestCache_PutAll_BatchWrite(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	entries := map[uint64][]float32{
		10: {1, 2, 3, 4},
		11: {5, 6, 7, 8},
	}
	c.PutAll(entries)
	require.NoError(t, c.Flush(ctx))

	n, err := c.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCache_LengthMismatch_TreatedAsMiss(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	// Simulate a stale L1 entry with the wrong dimensionality (Open
	// Question 2): direct injection since normal Put always writes
	// vectors of the configured width.
	c.l1.Add(99, []float32{1, 2})

	_, ok := c.Get(ctx, 99)
	assert.False(t, ok)
	_, stillCached := c.l1.Get(99)
	assert.False(t, stillCached, "mismatched entry should be evicted from L1")
}

func TestCache_Clear_EmptiesBothTiers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Put(5, []float32{1, 1, 1, 1})
	require.NoError(t, c.Flush(ctx))

	require.NoError(t, c.Clear(ctx))

	n, err := c.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, ok := c.Get(ctx, 5)
	assert.False(t, ok)
}

func TestCache_PeriodicFlusher_DrainsBufferWithoutExplicitFlush(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Put(3, []float32{1, 1, 0, 0})

	require.Eventually(t, func() bool {
		n, err := c.Size(ctx)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCache_ShutdownFlushesPendingWrites(t *testing.T) {
	c, err := New(Config{Dimension: 4, FlushInterval: time.Hour, BatchSize: 100, MaxBuffer: 1000}, nil)
	require.NoError(t, err)

	c.Put(1, []float32{1, 0, 0, 0})
	require.NoError(t, c.Shutdown())
}
