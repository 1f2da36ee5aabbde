package heaplet

// Stats is a point-in-time snapshot of a heap's accounting. Counters are only
// maintained when the heap was built with WithStats.
type Stats struct {
	// TotalBytes is the sum of the per-region first-block sizes
	// established at assignment; it never changes afterwards.
	TotalBytes uint64
	// AvailableBytes is the current free-list total, metadata included.
	AvailableBytes uint64
	// MinAvailableBytes is the low-water mark of AvailableBytes, updated
	// on every successful allocation and on in-place realloc growth. It is
	// monotone non-increasing, except that Restore sets it back to the
	// snapshot's value along with the rest of the state.
	MinAvailableBytes uint64
	// AllocCount and FreeCount count successful allocations and frees.
	AllocCount uint64
	FreeCount  uint64
}

// Stats returns the current snapshot, or ErrStatsDisabled when the heap was
// built without WithStats.
func (h *Heap) Stats() (Stats, error) {
	if !h.stats {
		return Stats{}, ErrStatsDisabled
	}
	h.protect()
	defer h.unprotect()
	return Stats{
		TotalBytes:        h.total,
		AvailableBytes:    h.available,
		MinAvailableBytes: h.minAvailable,
		AllocCount:        h.allocCount,
		FreeCount:         h.freeCount,
	}, nil
}
