package heaplet

// Realloc resizes the allocation behind p to size bytes.
//
//   - p == NilPtr, size == 0: no-op, returns NilPtr.
//   - p == NilPtr, size > 0: plain allocation.
//   - p != NilPtr, size == 0: frees p, returns NilPtr.
//   - otherwise the block is resized in place when possible: shrinking edits
//     the block directly, growing first tries to absorb the adjacent free
//     successor, then the adjacent free predecessor (shifting the payload
//     down), then both, and only then falls back to allocate-copy-free. The
//     returned pointer changes whenever the predecessor is absorbed or the
//     fallback runs.
//
// On failure the old block is left untouched and stays valid.
func (h *Heap) Realloc(p Ptr, size uint64) (Ptr, error) {
	h.protect()
	defer h.unprotect()
	return h.reallocate(nil, p, size)
}

// ReallocIn is Realloc with the fallback allocation pinned to one region.
func (h *Heap) ReallocIn(region Region, p Ptr, size uint64) (Ptr, error) {
	h.protect()
	defer h.unprotect()
	pin := h.pinned(region)
	if pin == nil {
		return NilPtr, ErrUnknownRegion
	}
	return h.reallocate(pin, p, size)
}

// ReallocSafe reallocates *p and updates it in place on success, or sets it
// to NilPtr when size == 0 frees the block. On failure *p is untouched.
func (h *Heap) ReallocSafe(p *Ptr, size uint64) error {
	if p == nil {
		return ErrNilTarget
	}
	np, err := h.Realloc(*p, size)
	if err != nil {
		return err
	}
	*p = np
	return nil
}

func (h *Heap) reallocate(pin *memRegion, p Ptr, size uint64) (Ptr, error) {
	if size == 0 {
		if p != NilPtr {
			if b, ok := h.blockFromPtr(p); ok {
				h.release(b)
			}
		}
		return NilPtr, nil
	}
	if p == NilPtr {
		return h.allocate(pin, size)
	}
	if !h.assembled() {
		return NilPtr, ErrNotAssigned
	}

	if size >= uint64(allocBit) {
		return NilPtr, ErrSizeTooLarge
	}
	final := alignUp(size, h.align) + uint64(h.meta)
	if final >= uint64(allocBit) {
		return NilPtr, ErrSizeTooLarge
	}
	block, ok := h.blockFromPtr(p)
	if !ok {
		return NilPtr, ErrInvalidPointer
	}
	blockSize := uint64(h.blockSize(block))

	// Same aligned size: nothing to do. Deliberately returns before any
	// clean-memory handling, so a same-size realloc never scrubs bytes.
	if final == blockSize {
		return p, nil
	}

	if final < blockSize {
		h.shrink(block, uint32(blockSize), uint32(final))
		return p, nil
	}

	// Growing. prev is the last free block below the allocation, succ the
	// first free block (or end marker) above it.
	pp, prev := h.prevOf(block)
	succ := h.next(prev)
	var prevSize, succSize uint64
	if prev != startRef {
		prevSize = uint64(h.blockSize(prev))
	}
	if succ != nilRef {
		succSize = uint64(h.blockSize(succ))
	}

	// Grow into the adjacent free successor; the payload stays put.
	if succ != nilRef && block+uint32(blockSize) == succ && blockSize+succSize >= final {
		h.available -= succSize
		h.putSize(block, uint32(blockSize+succSize))
		h.setNext(prev, h.next(succ))

		h.splitTooBig(block, uint32(final))
		h.markAllocated(block)
		if h.stats {
			h.noteWatermark()
		}
		return p, nil
	}

	// Grow into the adjacent free predecessor; the payload shifts down
	// over the old header, so the move must handle the overlap.
	if prev != startRef && prev+uint32(prevSize) == block && prevSize+blockSize >= final {
		h.move(prev+h.meta, block+h.meta, uint32(blockSize)-h.meta)

		h.available -= prevSize
		h.putSize(prev, uint32(prevSize+blockSize))
		h.setNext(pp, h.next(prev))
		block = prev

		h.splitTooBig(block, uint32(final))
		h.markAllocated(block)
		if h.stats {
			h.noteWatermark()
		}
		return Ptr(uint64(block) + uint64(h.meta)), nil
	}

	// Grow into both neighbours at once.
	if prev != startRef && succ != nilRef &&
		prev+uint32(prevSize) == block && block+uint32(blockSize) == succ &&
		prevSize+blockSize+succSize >= final {
		h.move(prev+h.meta, block+h.meta, uint32(blockSize)-h.meta)

		h.available -= prevSize + succSize
		h.putSize(prev, uint32(prevSize+blockSize+succSize))
		h.setNext(pp, h.next(succ))
		block = prev

		h.splitTooBig(block, uint32(final))
		h.markAllocated(block)
		if h.stats {
			h.noteWatermark()
		}
		return Ptr(uint64(block) + uint64(h.meta)), nil
	}

	// No neighbourhood worked: allocate fresh, copy, free the old block.
	// The old block survives when the allocation fails.
	np, err := h.allocate(pin, size)
	if err != nil {
		return NilPtr, err
	}
	oldApp := blockSize - uint64(h.meta)
	n := min(oldApp, size)
	copy(h.payload(uint32(np)-h.meta)[:n], h.payload(block)[:n])
	h.release(block)
	return np, nil
}

// shrink handles a realloc to a smaller aligned size. When the cut-off tail
// can hold a block of its own it is split off; otherwise, when the adjacent
// successor is free, that block is shifted down to swallow the tail; when
// neither applies the block keeps its size.
func (h *Heap) shrink(block, blockSize, final uint32) {
	if blockSize-final >= h.meta {
		h.splitTooBig(block, final)
	} else {
		_, prev := h.prevOf(block)
		succ := h.next(prev)
		if succ != nilRef && block+blockSize == succ && h.blockSize(succ) > 0 {
			d := blockSize - final
			tmpSize, tmpNext := h.blockSize(succ), h.next(succ)

			ns := succ - d
			h.setNext(prev, ns)
			h.putSize(ns, tmpSize+d)
			h.setNext(ns, tmpNext)
			h.available += uint64(d)

			h.putSize(block, final)
		}
	}
	h.markAllocated(block)
}
