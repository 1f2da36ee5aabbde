package heaplet

// The process-wide default heap backing the package-level short forms. It is
// guarded and keeps statistics; being shared, it must tolerate concurrent
// callers once assigned.
var defaultHeap = New(WithGuard(), WithStats())

// Default returns the process-wide default heap.
func Default() *Heap {
	return defaultHeap
}

// Assign hands regions to the default heap.
func Assign(regions ...Region) (int, error) {
	return defaultHeap.Assign(regions...)
}

// Malloc allocates from the default heap.
func Malloc(size uint64) (Ptr, error) {
	return defaultHeap.Malloc(size)
}

// Calloc allocates zeroed memory from the default heap.
func Calloc(nitems, size uint64) (Ptr, error) {
	return defaultHeap.Calloc(nitems, size)
}

// Realloc resizes an allocation on the default heap.
func Realloc(p Ptr, size uint64) (Ptr, error) {
	return defaultHeap.Realloc(p, size)
}

// ReallocSafe resizes *p on the default heap, updating it in place.
func ReallocSafe(p *Ptr, size uint64) error {
	return defaultHeap.ReallocSafe(p, size)
}

// Free returns p to the default heap.
func Free(p Ptr) {
	defaultHeap.Free(p)
}

// FreeSafe frees *p on the default heap and sets it to NilPtr.
func FreeSafe(p *Ptr) {
	defaultHeap.FreeSafe(p)
}

// SizeOf reports the payload size behind p on the default heap.
func SizeOf(p Ptr) uint64 {
	return defaultHeap.SizeOf(p)
}

// Bytes returns the payload window behind p on the default heap.
func Bytes(p Ptr) []byte {
	return defaultHeap.Bytes(p)
}

// GetStats returns the default heap's statistics snapshot.
func GetStats() (Stats, error) {
	return defaultHeap.Stats()
}
