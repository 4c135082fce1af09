package nrhi

import (
	"unsafe"

	"github.com/outofforest/photon"

	"github.com/outofforest/nrhi/types"
)

var (
	bucketByteSize      = sizeOf[types.Bucket]()
	segmentByteSize     = sizeOf[types.Segment]()
	layerHeaderByteSize = sizeOf[types.DirectoryLayerHeader]()
	rootHeaderByteSize  = sizeOf[types.RootHeader]()
)

// projectRootHeader maps the index's fixed root header directly onto the
// pool's bytes.
func projectRootHeader(a types.Allocator, addr types.Address) *types.RootHeader {
	return photon.FromBytes[types.RootHeader](a.Bytes(addr, rootHeaderByteSize))
}

// projectLayer maps a directory layer header stored at addr directly onto
// the pool's bytes; writes through the returned pointer are writes to the
// pool.
func projectLayer(a types.Allocator, addr types.Address) *types.DirectoryLayerHeader {
	return photon.FromBytes[types.DirectoryLayerHeader](a.Bytes(addr, layerHeaderByteSize))
}

// segmentAddr returns the address of segment idx within a layer's segment
// array rooted at ptr.
func segmentAddr(ptr types.Address, idx uint64) types.Address {
	return ptr + types.Address(idx)*types.Address(segmentByteSize)
}

// projectSegments maps a layer's whole segment array onto the pool's
// bytes, for read-only iteration (capacity counting).
func projectSegments(a types.Allocator, ptr types.Address, segsPower uint64) []types.Segment {
	count := uint64(1) << segsPower
	bytes := a.Bytes(ptr, count*segmentByteSize)
	return photon.SliceFromPointer[types.Segment](unsafe.Pointer(&bytes[0]), int(count))
}

// bucketAddr returns the address of bucket idx within a segment's bucket
// array rooted at segPtr.
func bucketAddr(segPtr types.Address, idx uint64) types.Address {
	return segPtr + types.Address(idx)*types.Address(bucketByteSize)
}

// slotAddr returns the address of slot idx within a bucket at bucketAddr.
func slotAddr(addr types.Address, idx uint64) types.Address {
	return addr + types.Address(idx)*types.UInt64Length
}
