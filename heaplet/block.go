package heaplet

import "encoding/binary"

// Block metadata lives in-band, immediately before the payload: two
// little-endian uint32 words, next at +0 and size at +4. The size word counts
// the whole block including the metadata footprint; its top bit marks the
// block allocated. The next word holds the address of the next free block
// while the block is on the free list and allocMark while it is in use.
const (
	allocBit  = uint32(1) << 31
	allocMark = uint32(0xDEADBEEF)

	// nilRef terminates the free list. startRef stands for the
	// instance-resident start sentinel, which has no in-region address.
	// Both compare above every valid block address, so the ascending
	// free-list walk stops at them without a special case.
	nilRef   = uint32(0xFFFFFFFF)
	startRef = uint32(0xFFFFFFFE)

	// maxAddr bounds region extents so that block addresses stay clear of
	// the reserved references above.
	maxAddr = uint64(0xFFFF0000)
)

func (h *Heap) regionOf(addr uint32) *memRegion {
	var found *memRegion
	h.regionIdx.DescendLessOrEqual(&memRegion{base: addr}, func(r *memRegion) bool {
		if r.contains(addr) {
			found = r
		}
		return false
	})
	return found
}

func (h *Heap) word(addr, off uint32) uint32 {
	return binary.LittleEndian.Uint32(h.regionOf(addr).slice(addr+off, 4))
}

func (h *Heap) putWord(addr, off, v uint32) {
	binary.LittleEndian.PutUint32(h.regionOf(addr).slice(addr+off, 4), v)
}

func (h *Heap) next(addr uint32) uint32 {
	if addr == startRef {
		return h.startNext
	}
	return h.word(addr, 0)
}

func (h *Heap) setNext(addr, next uint32) {
	if addr == startRef {
		h.startNext = next
		return
	}
	h.putWord(addr, 0, next)
}

func (h *Heap) rawSize(addr uint32) uint32 {
	if addr == startRef {
		return 0
	}
	return h.word(addr, 4)
}

func (h *Heap) putSize(addr, v uint32) {
	h.putWord(addr, 4, v)
}

// blockSize is the block size with the alloc bit stripped.
func (h *Heap) blockSize(addr uint32) uint32 {
	return h.rawSize(addr) &^ allocBit
}

func (h *Heap) markAllocated(addr uint32) {
	h.putSize(addr, h.rawSize(addr)|allocBit)
	h.putWord(addr, 0, allocMark)
}

// payload is the user-visible byte window of an allocated or free block.
func (h *Heap) payload(addr uint32) []byte {
	return h.regionOf(addr).slice(addr+h.meta, h.blockSize(addr)-h.meta)
}

// blockFromPtr validates a payload pointer and resolves its block address.
// The in-use predicate (alloc bit set, next holds the allocated mark) is the
// best-effort double-free and stray-pointer guard.
func (h *Heap) blockFromPtr(p Ptr) (uint32, bool) {
	if p == NilPtr || !h.assembled() || uint64(p) >= maxAddr || uint64(p) < uint64(h.meta) {
		return 0, false
	}
	b := uint32(p) - h.meta
	r := h.regionOf(b)
	if r == nil || b+h.meta >= r.limit() {
		return 0, false
	}
	if h.word(b, 0) != allocMark || h.word(b, 4)&allocBit == 0 {
		return 0, false
	}
	return b, true
}

// move shifts payload bytes downward inside a single region. Source and
// destination overlap during realloc growth into a preceding free block;
// copy handles the overlap like memmove.
func (h *Heap) move(dst, src, n uint32) {
	if n == 0 {
		return
	}
	r := h.regionOf(dst)
	copy(r.slice(dst, n), r.slice(src, n))
}
