package heaplet

import "fmt"

// Region is a caller-supplied contiguous byte extent handed over to a heap at
// assignment time. Base is the address of Buf[0] in the heap's address space;
// it lets callers model discontiguous memory banks the way embedded linkers
// lay them out. The backing slice is owned by the heap for the lifetime of the
// instance and must outlive it.
type Region struct {
	Base uint64
	Buf  []byte
}

func (r Region) String() string {
	return fmt.Sprintf("[%#x, %#x)", r.Base, r.Base+uint64(len(r.Buf)))
}

// normalize aligns the region to the heap alignment: the base is advanced up
// to the next multiple, the length is reduced by the advance and then rounded
// down to a multiple. Returns the normalized base and size; size is 0 when the
// advance consumes the whole extent.
func (r Region) normalize(align uint64) (base, size uint64) {
	base = alignUp(r.Base, align)
	adv := base - r.Base
	if adv >= uint64(len(r.Buf)) {
		return base, 0
	}
	size = (uint64(len(r.Buf)) - adv) &^ (align - 1)
	return base, size
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// memRegion is an assembled region: the normalized extent plus the window of
// the caller's slice that backs it. buf[0] is the byte at address base.
type memRegion struct {
	raw  Region
	base uint32
	size uint32
	buf  []byte
}

func (r *memRegion) limit() uint32 {
	return r.base + r.size
}

func (r *memRegion) contains(addr uint32) bool {
	return addr >= r.base && addr < r.limit()
}

func (r *memRegion) slice(addr, n uint32) []byte {
	off := addr - r.base
	return r.buf[off : off+n]
}
