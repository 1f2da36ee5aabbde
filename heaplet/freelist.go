package heaplet

// insertFree links a block into the free list in ascending address order and
// coalesces it with physically adjacent free neighbours. Region end markers
// are never merged away; they keep the per-region chain intact.
func (h *Heap) insertFree(nb uint32) {
	// Last free block below nb. nilRef compares above every valid address,
	// so the walk stops at the list tail without a special case.
	prev := startRef
	for h.next(prev) < nb {
		prev = h.next(prev)
	}

	if h.clean {
		clear(h.payload(nb))
	}

	// Merge with the previous free block when they touch. The merged block
	// becomes the working block so a following merge can chain onto it.
	if prev != startRef && prev+h.blockSize(prev) == nb {
		h.putSize(prev, h.blockSize(prev)+h.blockSize(nb))
		nb = prev
	}

	// Merge with the following free block when they touch. End markers
	// have size 0 and are left alone.
	pn := h.next(prev)
	if pn != nilRef && h.blockSize(pn) > 0 && nb+h.blockSize(nb) == pn {
		if pn == h.endBlock {
			h.setNext(nb, h.endBlock)
		} else {
			h.putSize(nb, h.blockSize(nb)+h.blockSize(pn))
			h.setNext(nb, h.next(pn))
		}
	} else {
		h.setNext(nb, pn)
	}

	// Splice unless the merge above already made prev the working block.
	if prev != nb {
		h.setNext(prev, nb)
	}
}

// splitTooBig carves the tail of block off as a new free block when the
// leftover can hold at least a metadata footprint, shrinking block to target.
// The block's alloc bit survives the split. Reports whether a split happened.
func (h *Heap) splitTooBig(block, target uint32) bool {
	raw := h.rawSize(block)
	bit := raw & allocBit
	size := raw &^ allocBit

	if size-target < h.meta {
		return false
	}

	tail := block + target
	h.putSize(tail, size-target)
	h.putSize(block, target|bit)

	h.available += uint64(size - target)
	h.insertFree(tail)
	return true
}

// prevOf walks the free list up to block and returns the last free block
// strictly below it together with that block's own predecessor. prev is
// startRef when no free block sits below block; prevprev is nilRef until the
// walk advances.
func (h *Heap) prevOf(block uint32) (prevprev, prev uint32) {
	prevprev, prev = nilRef, startRef
	for h.next(prev) < block {
		prevprev, prev = prev, h.next(prev)
	}
	return prevprev, prev
}
