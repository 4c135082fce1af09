package alloc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/nrhi/types"
)

func TestAllocBumpsForwardAndZeroes(t *testing.T) {
	requireT := require.New(t)
	a := RunInTest(t, 1<<20)

	addr, err := a.Alloc(64)
	requireT.NoError(err)
	requireT.NotZero(addr)

	b := a.Bytes(addr, 64)
	for _, v := range b {
		requireT.Zero(v)
	}

	addr2, err := a.Alloc(64)
	requireT.NoError(err)
	requireT.NotEqual(addr, addr2)
}

func TestAllocOutOfMemory(t *testing.T) {
	requireT := require.New(t)
	a := RunInTest(t, 256)

	_, err := a.Alloc(64)
	requireT.NoError(err)
	_, err = a.Alloc(64)
	requireT.NoError(err)

	_, err = a.Alloc(1 << 20)
	requireT.ErrorIs(err, types.ErrOutOfPersistentMemory)
}

func TestAtomicCASPublishesAndRejectsStale(t *testing.T) {
	requireT := require.New(t)
	a := RunInTest(t, 1<<20)

	addr, err := a.Alloc(types.UInt64Length)
	requireT.NoError(err)

	swapped, observed := a.AtomicCAS(addr, 0, 42)
	requireT.True(swapped)
	requireT.EqualValues(42, observed)
	requireT.EqualValues(42, a.AtomicLoad(addr))

	swapped, observed = a.AtomicCAS(addr, 0, 99)
	requireT.False(swapped)
	requireT.EqualValues(42, observed)
}

func TestFreeReusesSameSizeClass(t *testing.T) {
	requireT := require.New(t)
	a := RunInTest(t, 1<<20)

	addr, err := a.Alloc(128)
	requireT.NoError(err)

	a.AtomicStoreDurable(addr, 0xdeadbeef)
	a.Free(addr, 128)

	requireT.Eventually(func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.freelist[128]) == 1
	}, time.Second, time.Millisecond)

	reused, err := a.Alloc(128)
	requireT.NoError(err)
	requireT.Equal(addr, reused)
	requireT.EqualValues(0, a.AtomicLoad(reused))
}
