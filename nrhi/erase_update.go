package nrhi

// erase is a declared but unimplemented placeholder, matching the core's
// NotImplemented error kind: a complete design would CAS the resolved
// slot from its current word to 0 and retire the old KV record, but
// retirement must tolerate a reader that is mid-dereference through an
// Accessor obtained before the erase, which needs epoch-based reclamation
// or deferred free (see alloc.Reclaimer for the deferred-free half of
// that story; there is no epoch tracking here).
func erase[K, V comparable](_ *Index[K, V], _ K) bool {
	return false
}

// update is a declared but unimplemented placeholder. A complete design
// extends Insert's probe with a second CAS pattern: allocate the new KV,
// CAS the resolved slot from its old word to a new word preserving the
// original token (the token is a function of the key, which update does
// not change) and pointing at the new KV, then retire the old KV under
// the same reclamation scheme Erase would need.
func update[K, V comparable](_ *Index[K, V], _ K, _ V) bool {
	return false
}
