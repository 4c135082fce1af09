package nrhi

import (
	"github.com/outofforest/photon"

	"github.com/outofforest/nrhi/types"
)

// kvRecord is the persistent, fixed-size representation of one key-value
// pair. Both key and value are stored by value; a slot references this
// record's address directly, with no further indirection.
type kvRecord[K, V comparable] struct {
	Key   K
	Value V
}

func kvByteSize[K, V comparable]() uint64 {
	return sizeOf[kvRecord[K, V]]()
}

// allocKV durably allocates and publishes a key-value record, returning its
// address. The record is fully constructed and flushed before this
// function returns: a slot published after this call never references a
// partially-written record.
func allocKV[K, V comparable](a types.Allocator, key K, value V) (types.Address, error) {
	size := kvByteSize[K, V]()
	addr, err := a.Alloc(size)
	if err != nil {
		return 0, err
	}
	rec := photon.FromBytes[kvRecord[K, V]](a.Bytes(addr, size))
	rec.Key = key
	rec.Value = value
	a.Flush(addr, size)
	return addr, nil
}

// freeKV reclaims a key-value record previously returned by allocKV. Used
// only on the Insert-path CAS loser: a thread whose speculative KV record
// was never published because a concurrent Insert's CAS won the slot
// first (see nrhi/insert.go). The growth engine never calls this; its own
// CAS losers free a segment's bucket array or a directory layer instead
// (see nrhi/growth.go).
func freeKV[K, V comparable](a types.Allocator, addr types.Address) {
	a.Free(addr, kvByteSize[K, V]())
}

// projectKV maps a key-value record stored at addr directly onto the
// pool's bytes.
func projectKV[K, V comparable](a types.Allocator, addr types.Address) *kvRecord[K, V] {
	return photon.FromBytes[kvRecord[K, V]](a.Bytes(addr, kvByteSize[K, V]()))
}
