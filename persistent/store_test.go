package persistent_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/nrhi/persistent"
)

func TestMemoryStoreAssignsNonZeroUUIDAndZeroesBody(t *testing.T) {
	requireT := require.New(t)

	store, dealloc, err := persistent.NewMemoryStore(4096, false)
	requireT.NoError(err)
	defer dealloc()

	requireT.NotZero(store.UUID())
	requireT.EqualValues(4096, store.Size())
	requireT.Len(store.Bytes(), 4096)
	for _, b := range store.Bytes()[8:] {
		requireT.Zero(b)
	}
	requireT.NoError(store.Sync())

	// the UUID is stable across repeated reads of the same store.
	requireT.Equal(store.UUID(), store.UUID())
}

func TestMemoryStoreUUIDsAreIndependent(t *testing.T) {
	requireT := require.New(t)

	store1, dealloc1, err := persistent.NewMemoryStore(4096, false)
	requireT.NoError(err)
	defer dealloc1()

	store2, dealloc2, err := persistent.NewMemoryStore(4096, false)
	requireT.NoError(err)
	defer dealloc2()

	requireT.NotEqual(store1.UUID(), store2.UUID())
}

func TestFileStoreAssignsUUIDOnceAndPreservesItOnReopen(t *testing.T) {
	requireT := require.New(t)

	f, err := os.CreateTemp(t.TempDir(), "nrhi-store-*.pm")
	requireT.NoError(err)
	requireT.NoError(f.Truncate(4096))

	store, dealloc, err := persistent.NewFileStore(f, 4096)
	requireT.NoError(err)
	uuid := store.UUID()
	requireT.NotZero(uuid)
	dealloc()

	f2, err := os.OpenFile(f.Name(), os.O_RDWR, 0)
	requireT.NoError(err)

	reopened, dealloc2, err := persistent.NewFileStore(f2, 4096)
	requireT.NoError(err)
	defer dealloc2()

	requireT.Equal(uuid, reopened.UUID())
}
