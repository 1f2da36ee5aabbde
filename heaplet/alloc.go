package heaplet

import "math/bits"

// Malloc allocates size bytes and returns the payload address. The search is
// first-fit across all regions in address order.
func (h *Heap) Malloc(size uint64) (Ptr, error) {
	h.protect()
	defer h.unprotect()
	return h.allocate(nil, size)
}

// MallocIn allocates like Malloc but only from the given region, which must
// be one of the regions passed to Assign.
func (h *Heap) MallocIn(region Region, size uint64) (Ptr, error) {
	h.protect()
	defer h.unprotect()
	pin := h.pinned(region)
	if pin == nil {
		return NilPtr, ErrUnknownRegion
	}
	return h.allocate(pin, size)
}

// Calloc allocates zeroed memory for nitems elements of size bytes each.
func (h *Heap) Calloc(nitems, size uint64) (Ptr, error) {
	h.protect()
	defer h.unprotect()
	return h.callocate(nil, nitems, size)
}

// CallocIn is Calloc pinned to one region.
func (h *Heap) CallocIn(region Region, nitems, size uint64) (Ptr, error) {
	h.protect()
	defer h.unprotect()
	pin := h.pinned(region)
	if pin == nil {
		return NilPtr, ErrUnknownRegion
	}
	return h.callocate(pin, nitems, size)
}

// Free returns the block behind p to the free list, coalescing with adjacent
// free space. A NilPtr or a pointer that fails the in-use check is a silent
// no-op.
func (h *Heap) Free(p Ptr) {
	h.protect()
	defer h.unprotect()
	if b, ok := h.blockFromPtr(p); ok {
		h.release(b)
	}
}

// FreeSafe frees *p and sets it to NilPtr so the caller cannot keep a
// dangling pointer.
func (h *Heap) FreeSafe(p *Ptr) {
	if p == nil {
		return
	}
	h.Free(*p)
	*p = NilPtr
}

// SizeOf reports the payload size behind p, or 0 when p does not identify a
// live allocated block.
func (h *Heap) SizeOf(p Ptr) uint64 {
	h.protect()
	defer h.unprotect()
	b, ok := h.blockFromPtr(p)
	if !ok {
		return 0
	}
	return uint64(h.blockSize(b) - h.meta)
}

// Bytes returns the payload window behind p, or nil when p does not identify
// a live allocated block. The window aliases the region backing; it stays
// valid until the block is freed or reallocated.
func (h *Heap) Bytes(p Ptr) []byte {
	h.protect()
	defer h.unprotect()
	b, ok := h.blockFromPtr(p)
	if !ok {
		return nil
	}
	return h.payload(b)
}

func (h *Heap) allocate(pin *memRegion, size uint64) (Ptr, error) {
	if size == 0 {
		return NilPtr, ErrZeroSize
	}
	if !h.assembled() {
		return NilPtr, ErrNotAssigned
	}
	// Checking size itself keeps alignUp from wrapping on absurd requests.
	if size >= uint64(allocBit) {
		return NilPtr, ErrSizeTooLarge
	}
	final := alignUp(size, h.align) + uint64(h.meta)
	if final >= uint64(allocBit) {
		return NilPtr, ErrSizeTooLarge
	}

	// First fit: walk the free list, skipping blocks below a pinned
	// region's base and giving up once past its upper bound.
	prev := startRef
	curr := h.next(prev)
	for {
		if curr == nilRef {
			return NilPtr, ErrNoMemory
		}
		if pin != nil && curr >= pin.limit() {
			return NilPtr, ErrNoMemory
		}
		if (pin == nil || curr >= pin.base) && uint64(h.blockSize(curr)) >= final {
			break
		}
		if h.next(curr) == nilRef || curr == h.endBlock {
			return NilPtr, ErrNoMemory
		}
		prev, curr = curr, h.next(curr)
	}

	h.setNext(prev, h.next(curr))
	h.available -= uint64(h.blockSize(curr))
	h.splitTooBig(curr, uint32(final))
	h.markAllocated(curr)
	if h.stats {
		h.allocCount++
		h.noteWatermark()
	}
	return Ptr(uint64(curr) + uint64(h.meta)), nil
}

func (h *Heap) callocate(pin *memRegion, nitems, size uint64) (Ptr, error) {
	hi, total := bits.Mul64(nitems, size)
	if hi != 0 {
		return NilPtr, ErrSizeOverflow
	}
	p, err := h.allocate(pin, total)
	if err != nil {
		return NilPtr, err
	}
	clear(h.payload(uint32(p) - h.meta)[:total])
	return p, nil
}

// release puts an already-validated block back on the free list.
func (h *Heap) release(b uint32) {
	h.putSize(b, h.blockSize(b))
	h.available += uint64(h.blockSize(b))
	h.insertFree(b)
	if h.stats {
		h.freeCount++
	}
}

func (h *Heap) noteWatermark() {
	if h.available < h.minAvailable {
		h.minAvailable = h.available
	}
}
