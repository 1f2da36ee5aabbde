package heaplet

import (
	"math/bits"
	"sync"
)

// SimpleHeap is the grow-only variant for extremely constrained deployments:
// a bump pointer over a single region. Allocations carry no metadata and can
// never be freed or resized.
type SimpleHeap struct {
	align uint64
	port  MutexPort
	mu    sync.Locker

	buf       []byte
	base      uint32
	next      uint32
	available uint64
	ready     bool
}

// NewSimple builds an unassigned grow-only heap. Alignment rules match New;
// WithCleanMemory and WithStats have no effect here.
func NewSimple(opts ...Option) *SimpleHeap {
	c := config{align: DefaultAlignment}
	for _, o := range opts {
		o(&c)
	}
	if c.align == 0 || c.align > 1<<16 || c.align&(c.align-1) != 0 {
		panic("heaplet: alignment must be a power of two in [1, 65536]")
	}
	return &SimpleHeap{align: c.align, port: c.port}
}

// Assign hands over the single region backing the heap. More than one region
// is a hard failure, not a truncation.
func (s *SimpleHeap) Assign(regions ...Region) (int, error) {
	if s.ready {
		return 0, ErrAssigned
	}
	if len(regions) == 0 {
		return 0, ErrNoRegions
	}
	if len(regions) > 1 {
		return 0, ErrTooManyRegions
	}
	r := regions[0]
	end := r.Base + uint64(len(r.Buf))
	if end > maxAddr || end < r.Base {
		return 0, ErrRegionBounds
	}
	base, size := r.normalize(s.align)
	if size == 0 {
		return 0, ErrNoUsableRegion
	}
	if s.port != nil {
		l, err := s.port()
		if err != nil || l == nil {
			return 0, ErrMutexCreate
		}
		s.mu = l
	}
	off := base - r.Base
	s.buf = r.Buf[off : off+size]
	s.base = uint32(base)
	s.next = uint32(base)
	s.available = size
	s.ready = true
	return 1, nil
}

// Malloc bumps the allocation cursor by the aligned size. There is no way to
// give the bytes back.
func (s *SimpleHeap) Malloc(size uint64) (Ptr, error) {
	s.protect()
	defer s.unprotect()
	return s.bump(size)
}

// Calloc is Malloc followed by zeroing the payload.
func (s *SimpleHeap) Calloc(nitems, size uint64) (Ptr, error) {
	hi, total := bits.Mul64(nitems, size)
	if hi != 0 {
		return NilPtr, ErrSizeOverflow
	}
	s.protect()
	defer s.unprotect()
	p, err := s.bump(total)
	if err != nil {
		return NilPtr, err
	}
	off := uint32(p) - s.base
	clear(s.buf[off : uint64(off)+total])
	return p, nil
}

// Available reports the bytes left below the region's end.
func (s *SimpleHeap) Available() uint64 {
	s.protect()
	defer s.unprotect()
	return s.available
}

// Bytes returns the n-byte payload window behind p. The heap keeps no
// per-allocation sizes, so the caller supplies the length.
func (s *SimpleHeap) Bytes(p Ptr, n uint64) []byte {
	s.protect()
	defer s.unprotect()
	if !s.ready || uint64(p) < uint64(s.base) {
		return nil
	}
	off := uint64(p) - uint64(s.base)
	if off+n > uint64(len(s.buf)) {
		return nil
	}
	return s.buf[off : off+n]
}

func (s *SimpleHeap) bump(size uint64) (Ptr, error) {
	if !s.ready {
		return NilPtr, ErrNotAssigned
	}
	if size == 0 {
		return NilPtr, ErrZeroSize
	}
	n := alignUp(size, s.align)
	if n < size || n > s.available {
		return NilPtr, ErrNoMemory
	}
	p := Ptr(s.next)
	s.next += uint32(n)
	s.available -= n
	return p, nil
}

func (s *SimpleHeap) protect() {
	if s.mu != nil {
		s.mu.Lock()
	}
}

func (s *SimpleHeap) unprotect() {
	if s.mu != nil {
		s.mu.Unlock()
	}
}
