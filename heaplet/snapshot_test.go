package heaplet

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBlocks(h *Heap) []Block {
	var out []Block
	for b := range h.Blocks() {
		out = append(out, b)
	}
	return out
}

func TestSnapshotRestore(t *testing.T) {
	h := New(WithStats())
	_, err := h.Assign(mkRegion(0x1000, 256), mkRegion(0x2000, 512))
	require.NoError(t, err)

	p1, err := h.Malloc(32)
	require.NoError(t, err)
	fill(h.Bytes(p1), 31)
	p2, err := h.Malloc(100)
	require.NoError(t, err)

	snap, err := h.Snapshot()
	require.NoError(t, err)
	blocksBefore := collectBlocks(h)
	availBefore := h.Available()

	// Churn the heap past the snapshot point.
	h.Free(p2)
	p3, err := h.Malloc(200)
	require.NoError(t, err)
	_, err = h.Realloc(p1, 80)
	require.NoError(t, err)
	h.Free(p3)

	require.NoError(t, h.Restore(snap))
	assert.Equal(t, availBefore, h.Available())
	assert.True(t, slices.Equal(blocksBefore, collectBlocks(h)))
	requireFilled(t, h.Bytes(p1), 31)
	assert.Equal(t, uint64(100), h.SizeOf(p2), "p2 is live again after the rewind")
	checkInvariants(t, h)
}

func TestSnapshot_Unassigned(t *testing.T) {
	h := New()
	_, err := h.Snapshot()
	assert.ErrorIs(t, err, ErrNotAssigned)
	assert.ErrorIs(t, h.Restore(&Snapshot{}), ErrNotAssigned)
}

func TestRestore_WrongHeap(t *testing.T) {
	h1 := New()
	_, err := h1.Assign(mkRegion(0x1000, 256), mkRegion(0x2000, 256))
	require.NoError(t, err)
	snap, err := h1.Snapshot()
	require.NoError(t, err)

	h2 := New()
	_, err = h2.Assign(mkRegion(0x1000, 256))
	require.NoError(t, err)
	assert.ErrorIs(t, h2.Restore(snap), ErrBadSnapshot)
	assert.ErrorIs(t, h2.Restore(nil), ErrBadSnapshot)
}
