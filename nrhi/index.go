// Package nrhi implements a crash-consistent concurrent hash index over
// byte-addressable persistent memory: a directory of segments of buckets
// of slots, growing online by appending directory layers, never by
// rehashing.
package nrhi

import (
	"sync"

	"github.com/outofforest/mass"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/nrhi/types"
)

// accessorPoolSize is the desired capacity of an Index's Accessor pool,
// sized for a hot path issuing many sequential find/insert calls without
// forcing a fresh heap allocation per call.
const accessorPoolSize = 1024

// Default tunables for Config, matching the reference implementation's
// new(hashpower=10, segspower=3).
const (
	DefaultHashPower = 10
	DefaultSegsPower = 3
)

// Config configures a new or reopened Index.
type Config struct {
	// Allocator is the persistent allocator backing this index's pool.
	Allocator types.Allocator
	// HashPower is log2(bucket_size): each segment's bucket array holds
	// 1<<HashPower buckets. Only consulted by New; Recover reads it back
	// from the pool's root header. Defaults to DefaultHashPower.
	HashPower uint64
	// SegsPower is log2(the root directory layer's segment count). Only
	// consulted by New. Defaults to DefaultSegsPower.
	SegsPower uint64
	// Logger receives structured diagnostics for growth and recovery
	// events. Defaults to a no-op logger.
	Logger *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return nopLogger()
}

// Index is a crash-consistent concurrent hash index mapping keys of type K
// to values of type V.
type Index[K, V comparable] struct {
	alloc             types.Allocator
	log               *zap.Logger
	bucketsPerSegment uint64

	rootHeaderAddr types.Address

	// layersMu guards appends to layers; reads of already-appended
	// entries need no lock; see appendLayer.
	layersMu sync.Mutex
	layers   []types.Address

	massAcc *mass.Mass[Accessor[K, V]]
}

// New creates a fresh index inside config.Allocator's pool.
func New[K, V comparable](config Config) (*Index[K, V], error) {
	hashPower := config.HashPower
	if hashPower == 0 {
		hashPower = DefaultHashPower
	}
	segsPower := config.SegsPower
	if segsPower == 0 {
		segsPower = DefaultSegsPower
	}

	a := config.Allocator
	idx := &Index[K, V]{
		alloc:             a,
		log:               config.logger(),
		bucketsPerSegment: uint64(1) << hashPower,
		rootHeaderAddr:    types.RootHeaderAddr,
		massAcc:           mass.New[Accessor[K, V]](accessorPoolSize),
	}

	var rootLayerAddr types.Address
	err := a.Transaction(func() error {
		hdrAddr, err := a.Alloc(rootHeaderByteSize)
		if err != nil {
			return err
		}
		if hdrAddr != types.RootHeaderAddr {
			return errors.Errorf(
				"root header landed at unexpected address %d, index must be created on a fresh allocator",
				hdrAddr,
			)
		}

		layerAddr, err := newDirectoryLayer(a, segsPower, 0)
		if err != nil {
			return err
		}
		rootLayerAddr = layerAddr

		hdr := projectRootHeader(a, hdrAddr)
		hdr.HashPower = hashPower
		hdr.RootLayer = rootLayerAddr
		a.Flush(hdrAddr, rootHeaderByteSize)
		return nil
	})
	if err != nil {
		return nil, err
	}

	idx.layers = []types.Address{rootLayerAddr}

	idx.log.Info("index created",
		zap.Uint64("hashPower", hashPower),
		zap.Uint64("segsPower", segsPower),
		zap.Uint64("poolUUID", a.PoolUUID()),
	)

	return idx, nil
}

// Recover reopens an existing index inside config.Allocator's pool,
// re-establishing the in-memory traversal cache by forward-walking the
// directory chain from its root to its deepest layer.
func Recover[K, V comparable](config Config) (*Index[K, V], error) {
	a := config.Allocator
	hdr := projectRootHeader(a, types.RootHeaderAddr)

	idx := &Index[K, V]{
		alloc:             a,
		log:               config.logger(),
		bucketsPerSegment: uint64(1) << hdr.HashPower,
		rootHeaderAddr:    types.RootHeaderAddr,
		massAcc:           mass.New[Accessor[K, V]](accessorPoolSize),
	}

	layers, err := walkDirectoryChain(a, hdr.RootLayer)
	if err != nil {
		return nil, err
	}
	idx.layers = layers

	idx.log.Info("index recovered",
		zap.Uint64("hashPower", hdr.HashPower),
		zap.Int("numLayers", len(layers)),
		zap.Uint64("poolUUID", a.PoolUUID()),
	)

	return idx, nil
}

// Find looks up key and, if present, returns an accessor bound to its
// record.
func (idx *Index[K, V]) Find(key K) (Accessor[K, V], bool) {
	return idx.find(key)
}

// Insert publishes (key, value) if key is not already present. It reports
// whether the insertion happened; on false, the returned accessor is bound
// to the pre-existing entry.
func (idx *Index[K, V]) Insert(key K, value V) (Accessor[K, V], bool, error) {
	return idx.insert(key, value)
}

// NewAccessor borrows an Accessor from the index's pool, for callers using
// the out-parameter find/insert variants below on a hot path where
// avoiding a fresh heap allocation per call matters. The pool never
// shrinks; a borrowed accessor is simply overwritten on its next use, not
// returned.
func (idx *Index[K, V]) NewAccessor() *Accessor[K, V] {
	return idx.massAcc.New()
}

// FindInto is the out-parameter variant of Find.
func (idx *Index[K, V]) FindInto(key K, acc *Accessor[K, V]) bool {
	found, ok := idx.find(key)
	if !ok {
		return false
	}
	*acc = found
	return true
}

// InsertInto is the out-parameter variant of Insert.
func (idx *Index[K, V]) InsertInto(key K, value V, acc *Accessor[K, V]) (bool, error) {
	found, inserted, err := idx.insert(key, value)
	if err != nil {
		return false, err
	}
	*acc = found
	return inserted, nil
}

// Capacity returns the number of slots across every materialized bucket
// array in every directory layer. A defensive dedup guards against
// counting a shared bucket-array pointer twice; the invariants guarantee
// this never happens, so this is purely insurance against a future bug.
func (idx *Index[K, V]) Capacity() uint64 {
	seen := map[types.Address]struct{}{}
	var total uint64

	for _, layerAddr := range idx.snapshotLayers() {
		l := projectLayer(idx.alloc, layerAddr)
		for _, seg := range projectSegments(idx.alloc, l.SegmentsPtr, l.SegsPower) {
			if seg == 0 {
				continue
			}
			addr := types.Address(seg)
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			total += idx.bucketsPerSegment * types.SlotsNum
		}
	}
	return total
}

// Erase is a declared but unimplemented placeholder; see the design note
// on erase_update.go for the reclamation scheme a complete implementation
// would need.
func (idx *Index[K, V]) Erase(key K) bool {
	return erase(idx, key)
}

// Update is a declared but unimplemented placeholder; see the design note
// on erase_update.go.
func (idx *Index[K, V]) Update(key K, value V) bool {
	return update(idx, key, value)
}

func (idx *Index[K, V]) snapshotLayers() []types.Address {
	idx.layersMu.Lock()
	defer idx.layersMu.Unlock()
	out := make([]types.Address, len(idx.layers))
	copy(out, idx.layers)
	return out
}

// appendLayer records a newly visible directory layer in the in-memory
// traversal cache. It is idempotent: a growth-path loser that adopts the
// winner's layer, and the winner itself, may both call this for the same
// address.
func (idx *Index[K, V]) appendLayer(addr types.Address) {
	idx.layersMu.Lock()
	defer idx.layersMu.Unlock()
	for _, l := range idx.layers {
		if l == addr {
			return
		}
	}
	idx.layers = append(idx.layers, addr)
}
