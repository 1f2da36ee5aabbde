// Package heapdump renders heaplet block tables for debugging sessions. The
// allocator core itself never logs; this package reads its physical block
// walk and emits one structured event per block, plus a cheap digest of the
// metadata stream for spotting corruption between operations.
package heapdump

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/phuslu/log"

	"github.com/garethgeorge/goheaplet/heaplet"
)

// Dump logs every block of every region in physical order. A nil logger uses
// log.DefaultLogger.
func Dump(h *heaplet.Heap, logger *log.Logger) {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	for b := range h.Blocks() {
		logger.Info().
			Int("region", b.Region).
			Uint64("addr", b.Addr).
			Uint64("size", b.Size).
			Str("kind", kind(b)).
			Msg("block")
	}
}

func kind(b heaplet.Block) string {
	switch {
	case b.EndMarker:
		return "end-marker"
	case b.Allocated:
		return "allocated"
	default:
		return "free"
	}
}

// Digest hashes the physical metadata stream: region index, address, size and
// allocation state of every block. Two calls bracketing an operation sequence
// compare equal iff the block structure is unchanged.
func Digest(h *heaplet.Heap) uint64 {
	d := xxhash.New()
	var w [24]byte
	for b := range h.Blocks() {
		binary.LittleEndian.PutUint64(w[0:8], uint64(b.Region))
		binary.LittleEndian.PutUint64(w[8:16], b.Addr)
		binary.LittleEndian.PutUint64(w[16:24], b.Size)
		if b.Allocated {
			w[23] |= 0x80
		}
		d.Write(w[:])
	}
	return d.Sum64()
}
