package nrhi

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/outofforest/nrhi/types"
)

var nextFieldOffset = types.Address(unsafe.Offsetof(types.DirectoryLayerHeader{}.Next))

// newDirectoryLayer durably allocates and initializes a directory layer
// with a fresh, zero-initialized segment array, but does not link it into
// any chain: the caller CAS-publishes the link.
func newDirectoryLayer(a types.Allocator, segsPower uint64, prev types.Address) (types.Address, error) {
	segsCount := uint64(1) << segsPower

	segsAddr, err := a.Alloc(segsCount * segmentByteSize)
	if err != nil {
		return 0, err
	}

	layerAddr, err := a.Alloc(layerHeaderByteSize)
	if err != nil {
		a.Free(segsAddr, segsCount*segmentByteSize)
		return 0, err
	}

	l := projectLayer(a, layerAddr)
	l.SegsPower = segsPower
	l.SegmentsPtr = segsAddr
	l.Prev = prev
	l.Next = 0
	l.Checksum = layerChecksum(a, l)
	a.Flush(layerAddr, layerHeaderByteSize)

	return layerAddr, nil
}

func freeDirectoryLayer(a types.Allocator, layerAddr types.Address) {
	l := projectLayer(a, layerAddr)
	segsCount := uint64(1) << l.SegsPower
	a.Free(l.SegmentsPtr, segsCount*segmentByteSize)
	a.Free(layerAddr, layerHeaderByteSize)
}

// materializeSegment lazily allocates a segment's bucket array the first
// time a probe reaches it, via CAS 0 -> new array. If another thread wins
// the race, the loser frees its speculative array and adopts the winner's.
func materializeSegment(
	a types.Allocator, segSlotAddr types.Address, bucketsPerSegment uint64,
) (types.Address, error) {
	bucketsAddr, err := a.Alloc(bucketsPerSegment * bucketByteSize)
	if err != nil {
		return 0, err
	}
	a.Flush(bucketsAddr, bucketsPerSegment*bucketByteSize)

	swapped, observed := a.AtomicCAS(segSlotAddr, 0, uint64(bucketsAddr))
	if swapped {
		return bucketsAddr, nil
	}

	a.Free(bucketsAddr, bucketsPerSegment*bucketByteSize)
	return types.Address(observed), nil
}

// extendChain extends the directory chain past top with a new, deeper
// layer, via CAS top.Next 0 -> new layer. If another thread wins the
// race, the loser frees its speculative layer and adopts the winner's.
// Either way the returned layer's address is appended to the in-memory
// traversal cache before this returns.
func (idx *Index[K, V]) extendChain(top types.Address) (types.Address, error) {
	topHeader := projectLayer(idx.alloc, top)
	newSegsPower := topHeader.SegsPower + types.Expo

	newLayerAddr, err := newDirectoryLayer(idx.alloc, newSegsPower, top)
	if err != nil {
		return 0, err
	}

	nextAddr := top + nextFieldOffset
	swapped, observed := idx.alloc.AtomicCAS(nextAddr, 0, uint64(newLayerAddr))
	if swapped {
		idx.log.Debug("directory chain extended",
			zap.Uint64("newSegsPower", newSegsPower),
			zap.Uint64("layerAddr", uint64(newLayerAddr)),
		)
		idx.appendLayer(newLayerAddr)
		return newLayerAddr, nil
	}

	freeDirectoryLayer(idx.alloc, newLayerAddr)
	winner := types.Address(observed)
	idx.appendLayer(winner)
	return winner, nil
}
