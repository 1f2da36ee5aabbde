package heaplet

import "iter"

// Block describes one physical block during a walk of the assigned regions.
type Block struct {
	// Region indexes into Regions().
	Region int
	// Addr is the block's address; the payload starts one metadata
	// footprint above it.
	Addr uint64
	// Size is the full block size including metadata. End markers have
	// size 0.
	Size      uint64
	Allocated bool
	EndMarker bool
}

// Blocks walks every block of every region in physical order, end markers
// included. The heap's guard is held for the whole iteration; do not call
// back into the same heap from the loop body.
func (h *Heap) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		h.protect()
		defer h.unprotect()
		for i, r := range h.regions {
			addr := r.base
			for {
				raw := h.rawSize(addr)
				size := raw &^ allocBit
				b := Block{
					Region:    i,
					Addr:      uint64(addr),
					Size:      uint64(size),
					Allocated: raw&allocBit != 0,
					EndMarker: size == 0,
				}
				if !yield(b) {
					return
				}
				if size == 0 {
					break
				}
				addr += size
			}
		}
	}
}
