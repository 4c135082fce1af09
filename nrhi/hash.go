package nrhi

import (
	"unsafe"

	"github.com/cespare/xxhash"
	"github.com/outofforest/photon"

	"github.com/outofforest/nrhi/types"
)

// hashKey hashes key into a 64-bit key hash, the same way regardless of how
// many directory layers currently exist: the layer and bucket indices are
// later derived from different bit ranges of this one hash, so growing the
// directory never requires rehashing a single key.
func hashKey[K comparable](key K) types.KeyHash {
	p := photon.NewFromValue[K](&key)
	return types.KeyHash(xxhash.Sum64(p.B))
}

// deriveToken extracts the compound-pointer token from a key hash. Token 0
// is reserved to mean "slot empty", so a hash that happens to produce a
// zero token is forced non-zero; this biases the token distribution by at
// most 1 in 65536, negligible next to its job of short-circuiting probes.
func deriveToken(h types.KeyHash) types.Token {
	t := types.Token(h >> 48)
	if t == 0 {
		t = 1
	}
	return t
}

// deriveSegmentIndex picks which segment of a layer with 2^segsPower
// segments a key hash routes to, using its high bits so that as segsPower
// grows across directory layers, a key's low bits (which also feed the
// bucket index) stay stable. A shift count of 64 (segsPower==0) is well
// defined in Go and yields 0, the only valid index into a single-segment
// layer.
func deriveSegmentIndex(h types.KeyHash, segsPower uint64) uint64 {
	return uint64(h) >> (64 - segsPower)
}

// deriveBucketIndex picks which bucket within a segment a key hash routes
// to, from its low bits.
func deriveBucketIndex(h types.KeyHash, bucketsPerSegment uint64) uint64 {
	return uint64(h) & (bucketsPerSegment - 1)
}

// sizeOf returns the in-memory size, rounded to a multiple of 8 bytes, of
// a type projected directly onto persistent memory.
func sizeOf[T any]() uint64 {
	var v T
	size := uint64(unsafe.Sizeof(v))
	return (size + types.UInt64Length - 1) / types.UInt64Length * types.UInt64Length
}
