package types

// Allocator is the persistent allocator contract the NRHI core consumes
// (see spec §6). Implementations must guarantee that an object returned by
// Alloc is fully constructed and durable before its address is published
// into any slot, segment pointer, or directory-layer link.
//
// The reference implementation lives in package alloc; the NRHI core is
// written entirely against this interface so it never depends on how the
// pool itself allocates, maps, or flushes memory.
type Allocator interface {
	// Alloc reserves size bytes of persistent memory, zero-initialised,
	// and returns their address. It reports ErrOutOfPersistentMemory
	// (or a wrapped equivalent) when the pool is exhausted.
	Alloc(size uint64) (Address, error)

	// Free reclaims a persistent allocation previously returned by Alloc.
	// Implementations may defer the actual reclamation.
	Free(addr Address, size uint64)

	// Bytes returns a byte window over an allocation, for direct field
	// writes prior to a Flush. The window is valid only until the pool is
	// remapped (e.g. on close/reopen).
	Bytes(addr Address, size uint64) []byte

	// AtomicStoreDurable performs an 8-byte atomic store followed by a
	// durable flush of those 8 bytes.
	AtomicStoreDurable(addr Address, value uint64)

	// AtomicCAS performs an 8-byte atomic compare-and-swap. On success the
	// 8 bytes are durably flushed before AtomicCAS returns. On failure the
	// currently observed value is returned so the caller does not need a
	// separate load.
	AtomicCAS(addr Address, old, new uint64) (swapped bool, observed uint64)

	// AtomicLoad performs an 8-byte atomic load.
	AtomicLoad(addr Address) uint64

	// Flush durably flushes a byte range that was already written via
	// ordinary (non-atomic) stores, e.g. while initializing a freshly
	// allocated object before it is published via AtomicCAS.
	Flush(addr Address, size uint64)

	// Transaction runs fn inside a crash-atomic region, for composite
	// initialization that must not be observed half-done. Implementations
	// need not support nesting.
	Transaction(fn func() error) error

	// PoolUUID returns the UUID of the pool backing this allocator.
	PoolUUID() uint64
}
