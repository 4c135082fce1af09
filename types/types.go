// Package types defines the persisted layout of the NRHI index and the
// contract it consumes from the persistent memory allocator.
package types

const (
	// UInt64Length is the number of bytes taken by a uint64.
	UInt64Length = 8

	// SlotsNum is the number of slots in a bucket.
	SlotsNum = 8

	// LPDisS is the linear-probing tolerance window, in segments.
	LPDisS = 4

	// LPDisB is the linear-probing tolerance window, in buckets.
	LPDisB = 4

	// Expo is the number of bits by which segs_power grows on each directory-chain extension.
	Expo = 1

	// offsetBits is the width, in bits, of a slot's offset field.
	offsetBits = 48

	// offsetMask masks the low 48 bits of a slot word.
	offsetMask = uint64(1)<<offsetBits - 1

	// RootHeaderAddr is the fixed, well-known address of the index's root
	// header within a pool, mirroring the convention of reserving a fixed
	// node for top-level metadata: it sits immediately after the pool's
	// own UUID word, and is always the very first allocation a freshly
	// created Allocator hands out, so neither New nor Recover need to be
	// told where it is.
	RootHeaderAddr = Address(UInt64Length)
)

// Address is an offset into a persistent pool. It is only meaningful
// together with the pool's UUID (types.Allocator.PoolUUID).
type Address uint64

// KeyHash is the 64-bit hash of a key, as produced by the hash policy.
type KeyHash uint64

// Token is the partial-hash tag stored in the high 16 bits of a slot.
// Token 0 is reserved to mean "no token was ever computed here"; a hash
// whose top 16 bits are 0 gets token 1 instead (see nrhi.deriveToken), so a
// real token never collides with that reserved value.
type Token uint16

// Slot is the 64-bit compound pointer published into a bucket: bits [0,48)
// hold the offset of the KV record in the pool (0 means empty), bits
// [48,64) hold the token. It is a plain uint64 so that a single
// sync/atomic CAS on the word publishes offset and token together.
type Slot uint64

// PackSlot packs an offset and a token into a slot word.
func PackSlot(offset Address, token Token) Slot {
	return Slot(uint64(offset)&offsetMask | uint64(token)<<offsetBits)
}

// Offset returns the offset component of the slot.
func (s Slot) Offset() Address {
	return Address(uint64(s) & offsetMask)
}

// Token returns the token component of the slot.
func (s Slot) Token() Token {
	return Token(uint64(s) >> offsetBits)
}

// Empty reports whether the slot holds no published entry.
func (s Slot) Empty() bool {
	return s.Offset() == 0
}

// Bucket is a fixed array of slots, 64 bytes (one cache line) in size. The
// order of slots carries no meaning. Bucket arrays are placed on 8-byte
// boundaries; they are not aligned to cache-line boundaries.
type Bucket struct {
	Slots [SlotsNum]Slot
}

// Segment is a durable pointer to a bucket array. Zero means the segment's
// bucket array has not been materialized yet.
type Segment Address

// DirectoryLayerHeader is the durable header of one directory layer.
// SegmentsPtr points to an array of 1<<SegsPower Segment values. Prev/Next
// link the layer into the directory chain; Next is CAS'd from 0 to a new
// layer's address exactly once, by exactly one winning goroutine.
type DirectoryLayerHeader struct {
	SegsPower   uint64
	SegmentsPtr Address
	Prev        Address
	Next        Address
	// Checksum is the BLAKE3 digest of {SegsPower, SegmentsPtr, Prev},
	// computed just before this header is durably published. It excludes
	// Next, which is filled in afterwards by a separate CAS (see
	// nrhi/growth.go), and the segment array's own contents, which are
	// independently CAS'd from 0 to materialized bucket arrays long after
	// this header is published. It is revalidated by Recover.
	Checksum [32]byte
}

// RootHeader is the index's single fixed root object, allocated once at
// RootHeaderAddr when the index is created. It carries the one piece of
// configuration that must survive a reopen but is not itself part of a
// directory layer: the bucket-array size shared by every layer.
type RootHeader struct {
	// HashPower is log2(bucket_size): each segment's bucket array holds
	// 1<<HashPower buckets, for every layer in the chain.
	HashPower uint64
	// RootLayer is the address of the directory chain's root layer.
	RootLayer Address
}
