package persistent

import (
	"crypto/rand"
	"encoding/binary"
	"syscall"

	"github.com/pkg/errors"
)

// NewMemoryStore creates a new in-memory "persistent" store, used in tests
// that exercise crash-consistency logic without a real backing file: a
// process crash is simulated by dropping the Go-level Index and Recover-ing
// against the same mapped bytes, since MAP_ANONYMOUS memory survives a
// simulated restart within the same OS process just as well as a real file
// mapping would survive a restart of a real process.
func NewMemoryStore(size uint64, useHugePages bool) (*MemoryStore, func(), error) {
	opts := syscall.MAP_SHARED | syscall.MAP_ANONYMOUS | syscall.MAP_NORESERVE | syscall.MAP_POPULATE
	if useHugePages {
		opts |= syscall.MAP_HUGETLB
	}
	data, err := syscall.Mmap(-1, 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, opts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "memory allocation failed")
	}

	s := &MemoryStore{data: data}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		_ = syscall.Munmap(data)
		return nil, nil, errors.Wrap(err, "generating pool UUID failed")
	}
	if binary.LittleEndian.Uint64(b[:]) == 0 {
		b[0] = 1
	}
	copy(s.data[uuidOffset:uuidOffset+8], b[:])

	return s, func() {
		_ = syscall.Munmap(data)
	}, nil
}

// MemoryStore is an anonymous-mmap "persistent" store, used for testing.
type MemoryStore struct {
	data []byte
}

// UUID returns the pool's UUID.
func (s *MemoryStore) UUID() uint64 {
	return binary.LittleEndian.Uint64(s.data[uuidOffset : uuidOffset+8])
}

// Size returns the size of the store.
func (s *MemoryStore) Size() uint64 {
	return uint64(len(s.data))
}

// Bytes returns the mapped region.
func (s *MemoryStore) Bytes() []byte {
	return s.data
}

// Sync is a no-op: there is no backing file to flush to.
func (s *MemoryStore) Sync() error {
	return nil
}
