package nrhi

import (
	"github.com/zeebo/blake3"

	"github.com/outofforest/nrhi/types"
)

// layerChecksum covers exactly the three header fields a layer is created
// with and never again modifies in place: SegsPower, SegmentsPtr, Prev.
// It deliberately excludes Next (CAS'd from 0 to a new layer's address
// only after this layer is already durable and checksummed, so including
// it would make every existing checksum go stale the moment the directory
// chain grows) and the segment array itself (each entry is independently
// CAS'd from 0 to a materialized bucket array long after the layer header
// is published; the array's identity, not its mutable contents, is what
// this checksum protects against a torn or bit-rotted header).
func layerChecksum(_ types.Allocator, l *types.DirectoryLayerHeader) [32]byte {
	buf := make([]byte, 0, 3*types.UInt64Length)
	buf = appendUint64(buf, l.SegsPower)
	buf = appendUint64(buf, uint64(l.SegmentsPtr))
	buf = appendUint64(buf, uint64(l.Prev))

	return blake3.Sum256(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	for i := 0; i < types.UInt64Length; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}
