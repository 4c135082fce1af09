package nrhi

import "github.com/outofforest/nrhi/types"

// Accessor is a transient handle bound to a resolved slot: a borrow of a
// persistent address, not a lock. It carries no finalizer and holds no
// write access of its own; it remains valid as long as the record it
// points at is not concurrently freed, which the NRHI core never does in
// steady state since Erase and Update are unimplemented placeholders
// (see Index.Erase, Index.Update).
type Accessor[K, V comparable] struct {
	poolUUID uint64
	slotAddr types.Address
	kvAddr   types.Address
	key      K
	value    V
}

// Key returns the key the accessor is bound to.
func (a *Accessor[K, V]) Key() K {
	return a.key
}

// Value returns the value observed at resolution time.
func (a *Accessor[K, V]) Value() V {
	return a.value
}

// PoolUUID returns the UUID of the pool backing the accessor's record.
func (a *Accessor[K, V]) PoolUUID() uint64 {
	return a.poolUUID
}
