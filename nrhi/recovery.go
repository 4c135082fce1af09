package nrhi

import (
	"bytes"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/nrhi/types"
)

// walkDirectoryChain forward-walks the directory chain from its root to
// its deepest (Next == 0) layer, revalidating each layer's checksum along
// the way, and returns the layer addresses in root-to-top order.
func walkDirectoryChain(a types.Allocator, rootAddr types.Address) ([]types.Address, error) {
	var layers []types.Address
	addr := rootAddr
	for addr != 0 {
		l := projectLayer(a, addr)
		want := layerChecksum(a, l)
		if !bytes.Equal(want[:], l.Checksum[:]) {
			return nil, errors.Wrapf(ErrCorruptedLayer, "layer at address %d", addr)
		}
		layers = append(layers, addr)
		addr = l.Next
	}
	return layers, nil
}

// Recover re-establishes the in-memory traversal cache by re-walking the
// directory chain from its root. Call after reopening a pool whose writer
// was killed mid-operation: every insert whose call had already returned
// before the kill remains reachable, since a slot, segment pointer, or
// layer link is only ever made visible by a successful, flushed CAS.
func (idx *Index[K, V]) Recover() error {
	root := idx.layers[0]
	layers, err := walkDirectoryChain(idx.alloc, root)
	if err != nil {
		return err
	}

	idx.layersMu.Lock()
	idx.layers = layers
	idx.layersMu.Unlock()

	idx.log.Info("index recovered", zap.Int("numLayers", len(layers)))
	return nil
}
