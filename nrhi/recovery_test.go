package nrhi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/nrhi/alloc"
)

func TestWalkDirectoryChainDetectsCorruptedChecksum(t *testing.T) {
	requireT := require.New(t)

	a := alloc.RunInTest(t, 16<<20)
	idx, err := New[int, int](Config{Allocator: a, HashPower: 2, SegsPower: 1})
	requireT.NoError(err)

	_, inserted, err := idx.Insert(1, 1)
	requireT.NoError(err)
	requireT.True(inserted)

	root := idx.layers[0]
	layers, err := walkDirectoryChain(a, root)
	requireT.NoError(err)
	requireT.Len(layers, 1)

	l := projectLayer(a, root)
	l.Checksum[0] ^= 0xff
	a.Flush(root, layerHeaderByteSize)

	_, err = walkDirectoryChain(a, root)
	requireT.Error(err)
	requireT.ErrorIs(err, ErrCorruptedLayer)
}

func TestIndexRecoverPropagatesCorruptedChecksum(t *testing.T) {
	requireT := require.New(t)

	a := alloc.RunInTest(t, 16<<20)
	idx, err := New[int, int](Config{Allocator: a, HashPower: 2, SegsPower: 1})
	requireT.NoError(err)

	root := idx.layers[0]
	l := projectLayer(a, root)
	l.Checksum[0] ^= 0xff
	a.Flush(root, layerHeaderByteSize)

	err = idx.Recover()
	requireT.Error(err)
	requireT.ErrorIs(err, ErrCorruptedLayer)
}

func TestRecoverFuncPropagatesCorruptedChecksum(t *testing.T) {
	requireT := require.New(t)

	a := alloc.RunInTest(t, 16<<20)
	idx, err := New[int, int](Config{Allocator: a, HashPower: 2, SegsPower: 1})
	requireT.NoError(err)

	root := idx.layers[0]
	l := projectLayer(a, root)
	l.Checksum[0] ^= 0xff
	a.Flush(root, layerHeaderByteSize)

	_, err = Recover[int, int](Config{Allocator: a})
	requireT.Error(err)
	requireT.ErrorIs(err, ErrCorruptedLayer)
}
