package heaplet

import (
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// Snapshot is a saved copy of a heap's full state: the bookkeeping scalars
// plus a compressed image of every region. Intended for test harnesses and
// debugging sessions that replay allocation sequences from a known state.
type Snapshot struct {
	startNext    uint32
	endBlock     uint32
	available    uint64
	minAvailable uint64
	allocCount   uint64
	freeCount    uint64

	images [][]byte // zstd-compressed region bytes
	sums   []uint64 // xxhash64 of the raw bytes per region
}

// Snapshot captures the heap's current state.
func (h *Heap) Snapshot() (*Snapshot, error) {
	if !h.assembled() {
		return nil, ErrNotAssigned
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	h.protect()
	defer h.unprotect()
	s := &Snapshot{
		startNext:    h.startNext,
		endBlock:     h.endBlock,
		available:    h.available,
		minAvailable: h.minAvailable,
		allocCount:   h.allocCount,
		freeCount:    h.freeCount,
	}
	for _, r := range h.regions {
		s.images = append(s.images, enc.EncodeAll(r.buf, nil))
		s.sums = append(s.sums, xxhash.Sum64(r.buf))
	}
	return s, nil
}

// Restore rewinds the heap to a previously captured snapshot. The snapshot
// must come from this heap (same regions); pointers handed out after the
// snapshot was taken become invalid.
func (h *Heap) Restore(s *Snapshot) error {
	if !h.assembled() {
		return ErrNotAssigned
	}
	if s == nil || len(s.images) != len(h.regions) {
		return ErrBadSnapshot
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer dec.Close()

	h.protect()
	defer h.unprotect()
	for i, r := range h.regions {
		raw, err := dec.DecodeAll(s.images[i], nil)
		if err != nil {
			return err
		}
		if len(raw) != len(r.buf) || xxhash.Sum64(raw) != s.sums[i] {
			return ErrBadSnapshot
		}
		copy(r.buf, raw)
	}
	h.startNext = s.startNext
	h.endBlock = s.endBlock
	h.available = s.available
	h.minAvailable = s.minAvailable
	h.allocCount = s.allocCount
	h.freeCount = s.freeCount
	return nil
}
