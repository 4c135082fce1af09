// Package alloc provides the reference implementation of the persistent
// allocator contract defined by types.Allocator: bump allocation with a
// size-classed freelist, 8-byte atomic durable store/CAS, range flush, and
// a best-effort crash-atomic transaction region, all layered over a
// persistent.Store.
package alloc

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/outofforest/nrhi/persistent"
	"github.com/outofforest/nrhi/types"
)

// headerSize is the number of bytes reserved at the front of the pool for
// the UUID field persistent.Store maintains; Alloc never hands these out.
const headerSize = types.UInt64Length

// Config stores allocator configuration.
type Config struct {
	// Store is the byte-addressable pool this allocator manages.
	Store persistent.Store
}

// NewAllocator creates a persistent allocator over config.Store.
func NewAllocator(config Config) (*Allocator, error) {
	data := config.Store.Bytes()
	if uint64(len(data)) <= headerSize {
		return nil, errors.New("store is too small for the reserved header")
	}

	a := &Allocator{
		config:     config,
		data:       data,
		base:       unsafe.Pointer(&data[0]),
		freelist:   map[uint64][]types.Address{},
		allocCount: lo.ToPtr[uint64](0),
	}
	a.next.Store(headerSize)
	return a, nil
}

// Allocator is the reference persistent allocator: bump allocation with a
// size-classed freelist fed by deferred reclamation (see Reclaimer).
type Allocator struct {
	config Config
	data   []byte
	base   unsafe.Pointer

	next atomic.Uint64

	mu       sync.Mutex
	freelist map[uint64][]types.Address

	txMu sync.Mutex

	reclaimer *Reclaimer

	// allocCount counts every successful Alloc call, including ones later
	// freed. Tests use it to check that a rejected duplicate insert
	// allocates nothing.
	allocCount *uint64
}

// AllocCount returns the number of successful allocations served so far,
// including ones later freed.
func (a *Allocator) AllocCount() uint64 {
	return atomic.LoadUint64(a.allocCount)
}

// SetReclaimer attaches a background reclaimer. Once attached, Free hands
// freed allocations to it instead of reclaiming them synchronously on the
// caller's goroutine.
func (a *Allocator) SetReclaimer(r *Reclaimer) {
	a.reclaimer = r
}

// Alloc reserves size bytes, zero-initialised, and returns their address.
func (a *Allocator) Alloc(size uint64) (types.Address, error) {
	size = roundUp(size, types.UInt64Length)

	if addr, ok := a.takeFromFreelist(size); ok {
		atomic.AddUint64(a.allocCount, 1)
		return addr, nil
	}

	for {
		cur := a.next.Load()
		next := cur + size
		if next > uint64(len(a.data)) {
			return 0, errors.WithStack(types.ErrOutOfPersistentMemory)
		}
		if a.next.CompareAndSwap(cur, next) {
			atomic.AddUint64(a.allocCount, 1)
			return types.Address(cur), nil
		}
	}
}

// Free reclaims a persistent allocation. If a Reclaimer is attached, the
// reclamation is deferred to it; otherwise it happens synchronously.
func (a *Allocator) Free(addr types.Address, size uint64) {
	if addr == 0 {
		return
	}
	size = roundUp(size, types.UInt64Length)

	if a.reclaimer != nil {
		a.reclaimer.enqueue(addr, size)
		return
	}
	a.reclaim(addr, size)
}

// Bytes returns a byte window over an allocation.
func (a *Allocator) Bytes(addr types.Address, size uint64) []byte {
	return a.data[addr : uint64(addr)+size]
}

// AtomicStoreDurable performs an 8-byte durable store.
func (a *Allocator) AtomicStoreDurable(addr types.Address, value uint64) {
	atomic.StoreUint64(a.word(addr), value)
	a.Flush(addr, types.UInt64Length)
}

// AtomicCAS performs an 8-byte durable compare-and-swap.
func (a *Allocator) AtomicCAS(addr types.Address, old, new uint64) (bool, uint64) { //nolint:predeclared
	ptr := a.word(addr)
	if atomic.CompareAndSwapUint64(ptr, old, new) {
		a.Flush(addr, types.UInt64Length)
		return true, new
	}
	return false, atomic.LoadUint64(ptr)
}

// AtomicLoad performs an 8-byte atomic load.
func (a *Allocator) AtomicLoad(addr types.Address) uint64 {
	return atomic.LoadUint64(a.word(addr))
}

// Flush durably flushes a byte range.
//
// The reference persistent.Store only exposes whole-pool durability
// (persistent.Store.Sync), so this is coarser than a real PM `pmem_flush`
// of just [addr, addr+size) would be — correct, since every byte already
// written is included, but not performance-representative. A production
// allocator over real PM would flush exactly the given range with a
// CLWB/CLFLUSHOPT loop instead of fsync-ing the whole mapping.
func (a *Allocator) Flush(_ types.Address, _ uint64) {
	_ = a.config.Store.Sync()
}

// Transaction runs fn while holding the allocator's transaction lock,
// giving composite initialization (e.g. building a new directory layer's
// header before it is CAS-published) a region no concurrent Transaction
// call observes half-done. It is not a rollback journal: if fn fails after
// partial writes, those writes stand, exactly like every other node this
// allocator hands out that is abandoned before publication (the growth
// engine already tolerates this, since an abandoned node is never
// reachable from a published pointer).
func (a *Allocator) Transaction(fn func() error) error {
	a.txMu.Lock()
	defer a.txMu.Unlock()
	return fn()
}

// PoolUUID returns the UUID of the pool backing this allocator.
func (a *Allocator) PoolUUID() uint64 {
	return a.config.Store.UUID()
}

func (a *Allocator) word(addr types.Address) *uint64 {
	return (*uint64)(unsafe.Add(a.base, addr))
}

func (a *Allocator) takeFromFreelist(size uint64) (types.Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.freelist[size]
	if len(bucket) == 0 {
		return 0, false
	}
	addr := bucket[len(bucket)-1]
	a.freelist[size] = bucket[:len(bucket)-1]
	return addr, true
}

func (a *Allocator) reclaim(addr types.Address, size uint64) {
	clear(a.data[addr : uint64(addr)+size])

	a.mu.Lock()
	a.freelist[size] = append(a.freelist[size], addr)
	a.mu.Unlock()
}

func roundUp(size, unit uint64) uint64 {
	return (size + unit - 1) / unit * unit
}
