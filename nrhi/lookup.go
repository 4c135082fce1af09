package nrhi

import "github.com/outofforest/nrhi/types"

// find implements the read-only probe described by the lookup contract:
// walk directory layers root to top; within each layer probe LP_DIS_S
// consecutive segments and, within each populated segment, LP_DIS_B
// consecutive buckets of slots_num slots; a segment whose bucket array is
// still unmaterialized ends that layer's probe early, since growth only
// ever proceeds outward and a deeper layer may still hold the key.
func (idx *Index[K, V]) find(key K) (Accessor[K, V], bool) {
	h := hashKey(key)
	token := deriveToken(h)
	b0 := deriveBucketIndex(h, idx.bucketsPerSegment)

	for _, layerAddr := range idx.snapshotLayers() {
		l := projectLayer(idx.alloc, layerAddr)
		segsCount := uint64(1) << l.SegsPower
		s0 := deriveSegmentIndex(h, l.SegsPower)

		for si := uint64(0); si < types.LPDisS; si++ {
			segIdx := (s0 + si) % segsCount
			segPtr := types.Address(idx.alloc.AtomicLoad(segmentAddr(l.SegmentsPtr, segIdx)))
			if segPtr == 0 {
				break
			}

			if acc, ok := idx.probeSegment(segPtr, b0, token, key); ok {
				return acc, true
			}
		}
	}
	return Accessor[K, V]{}, false
}

// probeSegment scans the LP_DIS_B x slots_num window of one already
// materialized segment for key, returning the first match.
func (idx *Index[K, V]) probeSegment(segPtr types.Address, b0 uint64, token types.Token, key K) (Accessor[K, V], bool) {
	for bi := uint64(0); bi < types.LPDisB; bi++ {
		bucketIdx := (b0 + bi) % idx.bucketsPerSegment
		bAddr := bucketAddr(segPtr, bucketIdx)

		for slotIdx := uint64(0); slotIdx < types.SlotsNum; slotIdx++ {
			sAddr := slotAddr(bAddr, slotIdx)
			slot := types.Slot(idx.alloc.AtomicLoad(sAddr))
			if slot.Empty() || slot.Token() != token {
				continue
			}
			kv := projectKV[K, V](idx.alloc, slot.Offset())
			if kv.Key == key {
				return Accessor[K, V]{
					poolUUID: idx.alloc.PoolUUID(),
					slotAddr: sAddr,
					kvAddr:   slot.Offset(),
					key:      kv.Key,
					value:    kv.Value,
				}, true
			}
		}
	}
	return Accessor[K, V]{}, false
}
