package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitsune-search/containerindex/internal/item"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_UpsertContainer_NewCoordsGetFreshID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 10, Y: 64, Z: 10}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestStore_UpsertContainer_ExistingCoordReturnsSameID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 1, Y: 2, Z: 3}})
	require.NoError(t, err)

	id2, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 1, Y: 2, Z: 3}, {X: 1, Y: 2, Z: 4}})
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestStore_UpsertContainer_PrimaryIsLexicographicallySmallest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 5, Y: 1, Z: 5}, {X: 5, Y: 1, Z: 4}})
	require.NoError(t, err)

	containers, err := s.ContainersInRadius(ctx, "world", 5, 1, 4, 0.5)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, id, containers[0])
}

func TestStore_UpsertItem_AssignsFreshOrdinalThenStable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	containerID, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 0, Y: 0, Z: 0}})
	require.NoError(t, err)

	ord1, err := s.UpsertItem(ctx, containerID, 0, item.Root, 123, []byte(`{"m":"x"}`))
	require.NoError(t, err)

	ord2, err := s.UpsertItem(ctx, containerID, 0, item.Root, 456, []byte(`{"m":"y"}`))
	require.NoError(t, err)

	assert.Equal(t, ord1, ord2, "same (container, slot, path) must keep the same ordinal")

	row, err := s.GetRow(ctx, ord1)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, uint64(456), row.Fingerprint)
}

func TestStore_UpsertItem_DifferentPathsGetDifferentOrdinals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	containerID, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 0, Y: 0, Z: 0}})
	require.NoError(t, err)

	nestedPath := item.Root.Append(item.ContainerRef{ContainerType: "shulker_box", ParentSlotIndex: 2})

	ord1, err := s.UpsertItem(ctx, containerID, 2, item.Root, 1, []byte("{}"))
	require.NoError(t, err)
	ord2, err := s.UpsertItem(ctx, containerID, 0, nestedPath, 2, []byte("{}"))
	require.NoError(t, err)

	assert.NotEqual(t, ord1, ord2)
}

func TestStore_DeleteItem_RemovesRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	containerID, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 0, Y: 0, Z: 0}})
	require.NoError(t, err)
	ord, err := s.UpsertItem(ctx, containerID, 0, item.Root, 1, []byte("{}"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteItem(ctx, ord))

	row, err := s.GetRow(ctx, ord)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestStore_DeleteContainer_CascadesToItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	containerID, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 0, Y: 0, Z: 0}})
	require.NoError(t, err)
	ord, err := s.UpsertItem(ctx, containerID, 0, item.Root, 1, []byte("{}"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteContainer(ctx, containerID))

	row, err := s.GetRow(ctx, ord)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestStore_GetItemsByContainer_ReturnsAllRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	containerID, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 0, Y: 0, Z: 0}})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, containerID, 0, item.Root, 1, []byte("{}"))
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, containerID, 1, item.Root, 2, []byte("{}"))
	require.NoError(t, err)

	rows, err := s.GetItemsByContainer(ctx, containerID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestStore_ContainersInRadius_ExcludesFarContainers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	near, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 0, Y: 64, Z: 0}})
	require.NoError(t, err)
	_, err = s.UpsertContainer(ctx, "world", []BlockCoord{{X: 1000, Y: 64, Z: 1000}})
	require.NoError(t, err)

	containers, err := s.ContainersInRadius(ctx, "world", 0, 64, 0, 10)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, near, containers[0])
}

func TestStore_AllOrdinals_ReturnsEveryItem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	containerID, err := s.UpsertContainer(ctx, "world", []BlockCoord{{X: 0, Y: 0, Z: 0}})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, containerID, 0, item.Root, 1, []byte("{}"))
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, containerID, 1, item.Root, 2, []byte("{}"))
	require.NoError(t, err)

	ordinals, err := s.AllOrdinals(ctx)
	require.NoError(t, err)
	assert.Len(t, ordinals, 2)
}
