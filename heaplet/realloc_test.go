package heaplet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(buf []byte, seed byte) {
	for i := range buf {
		buf[i] = seed + byte(i)
	}
}

func requireFilled(t *testing.T, buf []byte, seed byte) {
	t.Helper()
	for i := range buf {
		require.Equal(t, seed+byte(i), buf[i], "payload byte %d", i)
	}
}

func TestRealloc_Degenerate(t *testing.T) {
	h := New()
	_, err := h.Assign(mkRegion(0x1000, 256))
	require.NoError(t, err)

	t.Run("nil pointer, zero size", func(t *testing.T) {
		p, err := h.Realloc(NilPtr, 0)
		require.NoError(t, err)
		assert.Equal(t, NilPtr, p)
	})

	t.Run("nil pointer allocates", func(t *testing.T) {
		p, err := h.Realloc(NilPtr, 16)
		require.NoError(t, err)
		require.NotEqual(t, NilPtr, p)
		h.Free(p)
	})

	t.Run("zero size frees", func(t *testing.T) {
		p, err := h.Malloc(16)
		require.NoError(t, err)
		q, err := h.Realloc(p, 0)
		require.NoError(t, err)
		assert.Equal(t, NilPtr, q)
		assert.Equal(t, uint64(248), h.Available())
	})

	t.Run("invalid pointer", func(t *testing.T) {
		_, err := h.Realloc(Ptr(0x1004), 16)
		assert.ErrorIs(t, err, ErrInvalidPointer)
	})

	t.Run("size aliasing the alloc bit", func(t *testing.T) {
		p, err := h.Malloc(16)
		require.NoError(t, err)
		_, err = h.Realloc(p, uint64(allocBit))
		assert.ErrorIs(t, err, ErrSizeTooLarge)
		h.Free(p)
	})
}

func TestRealloc_SameSize(t *testing.T) {
	h := New(WithCleanMemory())
	_, err := h.Assign(mkRegion(0x1000, 256))
	require.NoError(t, err)

	p, err := h.Malloc(16)
	require.NoError(t, err)
	fill(h.Bytes(p), 1)
	avail := h.Available()

	// Identical aligned size returns the same pointer and, deliberately,
	// never scrubs the payload even with clean-memory on.
	q, err := h.Realloc(p, 16)
	require.NoError(t, err)
	assert.Equal(t, p, q)
	assert.Equal(t, avail, h.Available())
	requireFilled(t, h.Bytes(p), 1)
	checkInvariants(t, h)

	// Sizes that align to the same block size are the same case.
	q, err = h.Realloc(p, 13)
	require.NoError(t, err)
	assert.Equal(t, p, q)
	requireFilled(t, h.Bytes(p)[:13], 1)
}

func TestRealloc_Shrink(t *testing.T) {
	t.Run("splits off the tail", func(t *testing.T) {
		h := New()
		_, err := h.Assign(mkRegion(0x1000, 256))
		require.NoError(t, err)
		p, err := h.Malloc(100)
		require.NoError(t, err)
		fill(h.Bytes(p), 3)
		avail := h.Available()

		q, err := h.Realloc(p, 20)
		require.NoError(t, err)
		assert.Equal(t, p, q)
		assert.Equal(t, uint64(20), h.SizeOf(p))
		assert.Equal(t, avail+80, h.Available())
		requireFilled(t, h.Bytes(p), 3)
		checkInvariants(t, h)
	})

	t.Run("shifts the adjacent successor down", func(t *testing.T) {
		h := New()
		_, err := h.Assign(mkRegion(0x1000, 256))
		require.NoError(t, err)
		p, err := h.Malloc(16)
		require.NoError(t, err)
		fill(h.Bytes(p), 5)
		avail := h.Available()

		// The 4-byte cut-off cannot hold a block of its own, but the
		// free successor is adjacent and swallows it.
		q, err := h.Realloc(p, 12)
		require.NoError(t, err)
		assert.Equal(t, p, q)
		assert.Equal(t, uint64(12), h.SizeOf(p))
		assert.Equal(t, avail+4, h.Available())
		requireFilled(t, h.Bytes(p), 5)
		checkInvariants(t, h)
	})

	t.Run("keeps the size when nothing can absorb the tail", func(t *testing.T) {
		h := New()
		_, err := h.Assign(mkRegion(0x1000, 256))
		require.NoError(t, err)
		p, err := h.Malloc(16)
		require.NoError(t, err)
		_, err = h.Malloc(16) // pins the successor side
		require.NoError(t, err)
		fill(h.Bytes(p), 7)
		avail := h.Available()

		q, err := h.Realloc(p, 12)
		require.NoError(t, err)
		assert.Equal(t, p, q)
		assert.Equal(t, uint64(16), h.SizeOf(p), "block keeps its old size")
		assert.Equal(t, avail, h.Available())
		requireFilled(t, h.Bytes(p)[:12], 7)
		checkInvariants(t, h)
	})
}

func TestRealloc_GrowIntoSuccessor(t *testing.T) {
	h := New()
	_, err := h.Assign(mkRegion(0x1000, 256))
	require.NoError(t, err)

	p1, err := h.Malloc(16)
	require.NoError(t, err)
	p2, err := h.Malloc(16)
	require.NoError(t, err)
	fill(h.Bytes(p1), 9)

	// Freeing the second allocation leaves a free block right above the
	// first; growing absorbs it and the pointer stays put.
	h.Free(p2)
	q, err := h.Realloc(p1, 32)
	require.NoError(t, err)
	assert.Equal(t, p1, q)
	assert.Equal(t, uint64(32), h.SizeOf(p1))
	requireFilled(t, h.Bytes(p1)[:16], 9)
	checkInvariants(t, h)
}

func TestRealloc_GrowIntoPredecessor(t *testing.T) {
	h := New()
	_, err := h.Assign(mkRegion(0x1000, 256))
	require.NoError(t, err)

	p1, err := h.Malloc(16)
	require.NoError(t, err)
	p2, err := h.Malloc(16)
	require.NoError(t, err)
	_, err = h.Malloc(16) // keeps the tail free block away from p2
	require.NoError(t, err)
	fill(h.Bytes(p2), 11)

	h.Free(p1)
	q, err := h.Realloc(p2, 40)
	require.NoError(t, err)
	assert.Equal(t, p1, q, "the grown block starts at the freed predecessor")
	assert.Equal(t, uint64(40), h.SizeOf(q))
	requireFilled(t, h.Bytes(q)[:16], 11)
	checkInvariants(t, h)
}

func TestRealloc_GrowIntoBothNeighbours(t *testing.T) {
	h := New()
	_, err := h.Assign(mkRegion(0x1000, 256))
	require.NoError(t, err)

	p1, err := h.Malloc(16)
	require.NoError(t, err)
	p2, err := h.Malloc(16)
	require.NoError(t, err)
	p3, err := h.Malloc(16)
	require.NoError(t, err)
	_, err = h.Malloc(16) // isolates p3's free block from the tail
	require.NoError(t, err)
	fill(h.Bytes(p2), 13)
	h.Free(p1)
	h.Free(p3)
	availBefore := h.Available()

	// 48 bytes need a 56-byte block: successor alone gives 48, the
	// predecessor pair gives 48, all three give 72.
	q, err := h.Realloc(p2, 48)
	require.NoError(t, err)
	assert.Equal(t, p1, q)
	assert.Equal(t, uint64(48), h.SizeOf(q))
	requireFilled(t, h.Bytes(q)[:16], 13)
	// Both neighbours left the free list; the 16-byte leftover returned.
	assert.Equal(t, availBefore-48+16, h.Available())
	checkInvariants(t, h)
}

func TestRealloc_Fallback(t *testing.T) {
	t.Run("relocates to another region", func(t *testing.T) {
		r0, r1 := mkRegion(0x1000, 128), mkRegion(0x2000, 1024)
		h := New()
		_, err := h.Assign(r0, r1)
		require.NoError(t, err)

		p1, err := h.Malloc(16)
		require.NoError(t, err)
		p2, err := h.Malloc(80) // fills the rest of the first region
		require.NoError(t, err)
		fill(h.Bytes(p1), 15)

		q, err := h.Realloc(p1, 200)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, uint64(q), r1.Base, "relocated into the second region")
		requireFilled(t, h.Bytes(q)[:16], 15)
		assert.Zero(t, h.SizeOf(p1), "old block was freed")
		h.Free(p2)
		h.Free(q)
		checkInvariants(t, h)
		assert.Equal(t, h.total, h.Available())
	})

	t.Run("failure preserves the old block", func(t *testing.T) {
		h := New()
		_, err := h.Assign(mkRegion(0x1000, 120))
		require.NoError(t, err)

		p1, err := h.Malloc(48)
		require.NoError(t, err)
		p2, err := h.Malloc(48)
		require.NoError(t, err)
		fill(h.Bytes(p1), 17)

		_, err = h.Realloc(p1, 60)
		assert.ErrorIs(t, err, ErrNoMemory)
		assert.Equal(t, uint64(48), h.SizeOf(p1), "old block still live")
		requireFilled(t, h.Bytes(p1), 17)
		assert.Equal(t, uint64(48), h.SizeOf(p2))
		checkInvariants(t, h)
	})

	t.Run("relocation copies the whole old payload", func(t *testing.T) {
		h := New()
		_, err := h.Assign(mkRegion(0x1000, 512))
		require.NoError(t, err)
		p, err := h.Malloc(32)
		require.NoError(t, err)
		_, err = h.Malloc(16) // blocks in-place growth on every side
		require.NoError(t, err)
		fill(h.Bytes(p), 19)

		q, err := h.Realloc(p, 64)
		require.NoError(t, err)
		assert.NotEqual(t, p, q)
		requireFilled(t, h.Bytes(q)[:32], 19)
		checkInvariants(t, h)
	})
}

func TestReallocIn(t *testing.T) {
	r0, r1 := mkRegion(0x1000, 256), mkRegion(0x2000, 1024)
	h := New()
	_, err := h.Assign(r0, r1)
	require.NoError(t, err)

	p, err := h.MallocIn(r0, 16)
	require.NoError(t, err)
	_, err = h.MallocIn(r0, 16)
	require.NoError(t, err)
	fill(h.Bytes(p), 21)

	// In-place growth is impossible (successor allocated); the pinned
	// fallback must land in the pinned region even though the other one
	// has plenty of room.
	q, err := h.ReallocIn(r0, p, 64)
	require.NoError(t, err)
	assert.Less(t, uint64(q), r1.Base)
	requireFilled(t, h.Bytes(q)[:16], 21)

	_, err = h.ReallocIn(mkRegion(0x9000, 64), q, 128)
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestReallocSafe(t *testing.T) {
	h := New()
	_, err := h.Assign(mkRegion(0x1000, 256))
	require.NoError(t, err)

	assert.ErrorIs(t, h.ReallocSafe(nil, 16), ErrNilTarget)

	var p Ptr
	require.NoError(t, h.ReallocSafe(&p, 16))
	require.NotEqual(t, NilPtr, p)
	fill(h.Bytes(p), 23)

	require.NoError(t, h.ReallocSafe(&p, 64))
	requireFilled(t, h.Bytes(p)[:16], 23)

	// Failure leaves the pointer untouched.
	old := p
	assert.ErrorIs(t, h.ReallocSafe(&p, 1<<20), ErrNoMemory)
	assert.Equal(t, old, p)

	// Freeing through the safe form nulls the pointer.
	require.NoError(t, h.ReallocSafe(&p, 0))
	assert.Equal(t, NilPtr, p)
	assert.Equal(t, uint64(248), h.Available())
	checkInvariants(t, h)
}
