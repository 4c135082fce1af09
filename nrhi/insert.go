package nrhi

import "github.com/outofforest/nrhi/types"

// walkPos identifies a (layer, segment-offset, bucket-offset, slot) triple
// in the deterministic order insert visits them: layer-first, then
// segment-offset, then bucket-offset, then slot index. It exists solely to
// break ties when two concurrent inserts of the same key each observe a
// different empty slot; see probeForInsert's use in insert.
type walkPos struct {
	layerIdx int
	si, bi   uint64
	slotIdx  uint64
}

func (p walkPos) before(o walkPos) bool {
	if p.layerIdx != o.layerIdx {
		return p.layerIdx < o.layerIdx
	}
	if p.si != o.si {
		return p.si < o.si
	}
	if p.bi != o.bi {
		return p.bi < o.bi
	}
	return p.slotIdx < o.slotIdx
}

type probeOutcome int

const (
	outcomeDuplicate probeOutcome = iota
	outcomeEmptySlot
	outcomeMaterialize
	outcomeGrowChain
)

type probeResult[K, V comparable] struct {
	outcome     probeOutcome
	pos         walkPos
	acc         Accessor[K, V]
	emptyAddr   types.Address
	segSlotAddr types.Address
}

// probeForInsert performs the full window walk insert needs: a duplicate
// found anywhere ends the walk immediately and wins over everything else;
// a segment whose bucket array is still unmaterialized also ends the walk
// immediately, since the caller must materialize it and restart the whole
// probe from scratch regardless of what else was seen (cheap, because a
// restart always redoes the full duplicate scan — nothing can be missed).
// Only when every segment in every layer's window is already materialized
// and no duplicate was found does the first observed empty slot (or, if
// none, the need to grow the directory chain) apply.
func (idx *Index[K, V]) probeForInsert(
	layers []types.Address, h types.KeyHash, token types.Token, b0 uint64, key K,
) probeResult[K, V] {
	var (
		haveEmpty bool
		emptyAddr types.Address
		emptyPos  walkPos
	)

	for layerIdx, layerAddr := range layers {
		l := projectLayer(idx.alloc, layerAddr)
		segsCount := uint64(1) << l.SegsPower
		s0 := deriveSegmentIndex(h, l.SegsPower)

		for si := uint64(0); si < types.LPDisS; si++ {
			segIdx := (s0 + si) % segsCount
			segSlotAddr := segmentAddr(l.SegmentsPtr, segIdx)
			segPtr := types.Address(idx.alloc.AtomicLoad(segSlotAddr))
			if segPtr == 0 {
				return probeResult[K, V]{outcome: outcomeMaterialize, segSlotAddr: segSlotAddr}
			}

			for bi := uint64(0); bi < types.LPDisB; bi++ {
				bucketIdx := (b0 + bi) % idx.bucketsPerSegment
				bAddr := bucketAddr(segPtr, bucketIdx)

				for slotIdx := uint64(0); slotIdx < types.SlotsNum; slotIdx++ {
					sAddr := slotAddr(bAddr, slotIdx)
					slot := types.Slot(idx.alloc.AtomicLoad(sAddr))
					pos := walkPos{layerIdx, si, bi, slotIdx}

					if slot.Empty() {
						if !haveEmpty {
							haveEmpty, emptyAddr, emptyPos = true, sAddr, pos
						}
						continue
					}
					if slot.Token() != token {
						continue
					}
					if kv := projectKV[K, V](idx.alloc, slot.Offset()); kv.Key == key {
						return probeResult[K, V]{
							outcome: outcomeDuplicate,
							pos:     pos,
							acc: Accessor[K, V]{
								poolUUID: idx.alloc.PoolUUID(),
								slotAddr: sAddr,
								kvAddr:   slot.Offset(),
								key:      kv.Key,
								value:    kv.Value,
							},
						}
					}
				}
			}
		}
	}

	if haveEmpty {
		return probeResult[K, V]{outcome: outcomeEmptySlot, emptyAddr: emptyAddr, pos: emptyPos}
	}
	return probeResult[K, V]{outcome: outcomeGrowChain}
}

// scanForDuplicate re-walks the same window purely to look for key,
// treating an unmaterialized segment the way find does (end this layer's
// probe, a deeper layer may still hold the key) rather than as a signal to
// grow: by the time this runs, the caller has already published its own
// slot and only cares whether a racing insert beat it to an earlier
// position, not whether the directory needs more room.
func (idx *Index[K, V]) scanForDuplicate(
	layers []types.Address, h types.KeyHash, token types.Token, b0 uint64, key K,
) (walkPos, Accessor[K, V], bool) {
	for layerIdx, layerAddr := range layers {
		l := projectLayer(idx.alloc, layerAddr)
		segsCount := uint64(1) << l.SegsPower
		s0 := deriveSegmentIndex(h, l.SegsPower)

		for si := uint64(0); si < types.LPDisS; si++ {
			segIdx := (s0 + si) % segsCount
			segPtr := types.Address(idx.alloc.AtomicLoad(segmentAddr(l.SegmentsPtr, segIdx)))
			if segPtr == 0 {
				break
			}

			for bi := uint64(0); bi < types.LPDisB; bi++ {
				bucketIdx := (b0 + bi) % idx.bucketsPerSegment
				bAddr := bucketAddr(segPtr, bucketIdx)

				for slotIdx := uint64(0); slotIdx < types.SlotsNum; slotIdx++ {
					sAddr := slotAddr(bAddr, slotIdx)
					slot := types.Slot(idx.alloc.AtomicLoad(sAddr))
					if slot.Empty() || slot.Token() != token {
						continue
					}
					if kv := projectKV[K, V](idx.alloc, slot.Offset()); kv.Key == key {
						return walkPos{layerIdx, si, bi, slotIdx}, Accessor[K, V]{
							poolUUID: idx.alloc.PoolUUID(),
							slotAddr: sAddr,
							kvAddr:   slot.Offset(),
							key:      kv.Key,
							value:    kv.Value,
						}, true
					}
				}
			}
		}
	}
	return walkPos{}, Accessor[K, V]{}, false
}

// insert implements generic_insert: if key is already present anywhere in
// the current probe window, returns its accessor with inserted=false;
// otherwise publishes (key, value) into the first empty slot observed and
// returns inserted=true. At-most-one concurrent insert of a given key
// succeeds, from every caller's point of view (see scanForDuplicate's use
// below for how the rare same-window race is resolved).
func (idx *Index[K, V]) insert(key K, value V) (Accessor[K, V], bool, error) {
	h := hashKey(key)
	token := deriveToken(h)
	b0 := deriveBucketIndex(h, idx.bucketsPerSegment)

	for {
		layers := idx.snapshotLayers()
		res := idx.probeForInsert(layers, h, token, b0, key)

		switch res.outcome {
		case outcomeDuplicate:
			return res.acc, false, nil

		case outcomeMaterialize:
			if _, err := materializeSegment(idx.alloc, res.segSlotAddr, idx.bucketsPerSegment); err != nil {
				return Accessor[K, V]{}, false, err
			}
			continue

		case outcomeGrowChain:
			if _, err := idx.extendChain(layers[len(layers)-1]); err != nil {
				return Accessor[K, V]{}, false, err
			}
			continue

		default: // outcomeEmptySlot
			kvAddr, err := allocKV(idx.alloc, key, value)
			if err != nil {
				return Accessor[K, V]{}, false, err
			}

			newSlot := types.PackSlot(kvAddr, token)
			swapped, _ := idx.alloc.AtomicCAS(res.emptyAddr, 0, uint64(newSlot))
			if !swapped {
				freeKV[K, V](idx.alloc, kvAddr)
				continue
			}

			acc := Accessor[K, V]{
				poolUUID: idx.alloc.PoolUUID(),
				slotAddr: res.emptyAddr,
				kvAddr:   kvAddr,
				key:      key,
				value:    value,
			}

			// Between finishing the scan above and this CAS, a
			// concurrent insert of the same key could have published
			// into a slot this scan already passed over as empty.
			// Re-scan once more: if key now appears at a position
			// earlier than ours, that publish happened first and every
			// caller should agree it is the winner.
			if pos, other, found := idx.scanForDuplicate(layers, h, token, b0, key); found && pos.before(res.pos) {
				return other, false, nil
			}

			return acc, true, nil
		}
	}
}
