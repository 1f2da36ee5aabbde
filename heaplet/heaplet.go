// Package heaplet is a dynamic memory allocator for fixed, caller-supplied
// byte regions. It serves variable-sized requests from an in-band, first-fit
// free list spanning multiple regions, coalesces neighbouring free space on
// release and resize, and supports in-place or relocating reallocation.
// Multiple independent heaps may coexist, each with its own regions and
// optional mutual-exclusion guard.
//
// Blocks are addressed by offsets in a per-heap 32-bit address space rather
// than machine pointers, so the allocator works on plain byte slices without
// unsafe.
package heaplet

import (
	"encoding/binary"
	"sync"

	"github.com/google/btree"
)

// Ptr is a payload address in a heap's address space. NilPtr is never a valid
// payload address: every payload sits at least one metadata footprint above
// its region base.
type Ptr uint64

const NilPtr Ptr = 0

// DefaultAlignment governs block addresses and sizes unless overridden with
// WithAlignment.
const DefaultAlignment = 4

// MutexPort creates the mutual-exclusion primitive guarding a heap. The core
// depends only on this capability, not on a concrete primitive; the default
// port hands out a sync.Mutex. A port returning an error fails the whole
// assignment.
type MutexPort func() (sync.Locker, error)

func defaultMutexPort() (sync.Locker, error) {
	return &sync.Mutex{}, nil
}

type config struct {
	align uint64
	clean bool
	stats bool
	port  MutexPort
}

type Option func(*config)

// WithAlignment sets the block alignment. It must be a power of two;
// constructors panic otherwise.
func WithAlignment(align uint64) Option {
	return func(c *config) { c.align = align }
}

// WithCleanMemory zeroes freed payloads as blocks return to the free list.
func WithCleanMemory() Option {
	return func(c *config) { c.clean = true }
}

// WithStats maintains allocation counters and the minimum-ever-available
// watermark, exposed through Stats.
func WithStats() Option {
	return func(c *config) { c.stats = true }
}

// WithGuard serializes all operations on the heap under a mutex created at
// assignment time.
func WithGuard() Option {
	return func(c *config) { c.port = defaultMutexPort }
}

// WithMutexPort guards the heap with a caller-supplied mutex port.
func WithMutexPort(port MutexPort) Option {
	return func(c *config) { c.port = port }
}

// Heap is an allocator instance. The zero value is not usable; construct with
// New and hand over memory with Assign before allocating.
//
// Without WithGuard or WithMutexPort a Heap is not safe for concurrent use.
type Heap struct {
	align uint64
	meta  uint32 // metadata footprint, header size aligned up
	clean bool
	stats bool
	port  MutexPort

	mu sync.Locker // nil when unguarded

	startNext uint32 // start sentinel's next: first free block or end marker; nilRef before assignment
	endBlock  uint32 // end marker of the last linked region; nilRef before assignment
	available uint64 // sum of size over all free blocks, metadata included

	regions   []*memRegion // ascending by base
	regionIdx *btree.BTreeG[*memRegion]

	total        uint64 // sum of first-block sizes established at assignment
	minAvailable uint64
	allocCount   uint64
	freeCount    uint64
}

// New builds an unassigned heap. It panics if the configured alignment is not
// a power of two in [1, 65536]; alignment is a deployment constant, not an
// input.
func New(opts ...Option) *Heap {
	c := config{align: DefaultAlignment}
	for _, o := range opts {
		o(&c)
	}
	if c.align == 0 || c.align > 1<<16 || c.align&(c.align-1) != 0 {
		panic("heaplet: alignment must be a power of two in [1, 65536]")
	}
	h := &Heap{
		align:     c.align,
		meta:      uint32(alignUp(8, c.align)),
		clean:     c.clean,
		stats:     c.stats,
		port:      c.port,
		startNext: nilRef,
		endBlock:  nilRef,
	}
	h.regionIdx = btree.NewG(8, func(a, b *memRegion) bool { return a.base < b.base })
	return h
}

func (h *Heap) assembled() bool {
	return h.endBlock != nilRef
}

func (h *Heap) protect() {
	if h.mu != nil {
		h.mu.Lock()
	}
}

func (h *Heap) unprotect() {
	if h.mu != nil {
		h.mu.Unlock()
	}
}

// Assign validates the regions and links them into the free list. It may be
// called exactly once per heap and is not guarded: it must complete before
// any concurrent use, and it creates the guard mutex as its last step.
//
// Regions must be given in ascending address order and must not overlap.
// Regions too small to hold a first block and an end marker after alignment
// are silently skipped. Returns the number of regions linked.
func (h *Heap) Assign(regions ...Region) (int, error) {
	if h.assembled() {
		return 0, ErrAssigned
	}
	if len(regions) == 0 {
		return 0, ErrNoRegions
	}

	var prevEnd uint64
	for _, r := range regions {
		end := r.Base + uint64(len(r.Buf))
		if r.Base < prevEnd {
			return 0, ErrRegionOrder
		}
		if end > maxAddr || end < r.Base {
			return 0, ErrRegionBounds
		}
		prevEnd = end
	}

	var (
		linked    []*memRegion
		startNext = nilRef
		endBlock  = nilRef
		avail     uint64
	)
	for _, raw := range regions {
		base, size := raw.normalize(h.align)
		if size < 2*uint64(h.meta) {
			continue
		}
		if size&uint64(allocBit) != 0 {
			return 0, ErrRegionBounds
		}
		off := base - raw.Base
		mr := &memRegion{
			raw:  raw,
			base: uint32(base),
			size: uint32(size),
			buf:  raw.Buf[off : off+size],
		}

		// End marker at the region's high address, then the first free
		// block covering the rest, pointing at it.
		end := mr.base + mr.size - h.meta
		putHeader(mr, end, nilRef, 0)
		putHeader(mr, mr.base, end, mr.size-h.meta)

		if endBlock == nilRef {
			startNext = mr.base
		} else {
			// Previous region's end marker links to this first block.
			prev := linked[len(linked)-1]
			putHeader(prev, endBlock, mr.base, 0)
		}
		endBlock = end
		avail += uint64(mr.size - h.meta)
		linked = append(linked, mr)
	}
	if len(linked) == 0 {
		return 0, ErrNoUsableRegion
	}

	if h.port != nil {
		l, err := h.port()
		if err != nil || l == nil {
			return 0, ErrMutexCreate
		}
		h.mu = l
	}

	h.startNext = startNext
	h.endBlock = endBlock
	h.available = avail
	h.total = avail
	h.minAvailable = avail
	h.regions = linked
	for _, mr := range linked {
		h.regionIdx.ReplaceOrInsert(mr)
	}
	return len(linked), nil
}

// putHeader writes a block header through a specific region, used during
// assignment before the region index is populated.
func putHeader(r *memRegion, addr, next, size uint32) {
	b := r.slice(addr, 8)
	binary.LittleEndian.PutUint32(b[0:4], next)
	binary.LittleEndian.PutUint32(b[4:8], size)
}

// pinned resolves a region-pin argument against the assigned regions. The
// Region value must be one previously passed to Assign.
func (h *Heap) pinned(region Region) *memRegion {
	for _, mr := range h.regions {
		if mr.raw.Base == region.Base {
			return mr
		}
	}
	return nil
}

// Available reports the bytes currently on the free list, metadata included.
func (h *Heap) Available() uint64 {
	h.protect()
	defer h.unprotect()
	return h.available
}

// Regions returns the assigned regions in address order.
func (h *Heap) Regions() []Region {
	out := make([]Region, len(h.regions))
	for i, mr := range h.regions {
		out[i] = mr.raw
	}
	return out
}
