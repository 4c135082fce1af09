package persistent

import (
	"crypto/rand"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// uuidOffset is the byte offset, within the pool, of the 8-byte pool UUID.
// It sits before anything the NRHI core allocates, mirroring the teacher's
// convention of reserving offset 0 for a fixed root header.
const uuidOffset = 0

// NewFileStore creates or reopens a file-backed store of the given size.
// A freshly zeroed file is recognized by a zero UUID field and assigned a
// new random UUID, durably; a file already carrying a non-zero UUID is
// treated as an existing pool being reopened.
func NewFileStore(file *os.File, size uint64) (*FileStore, func(), error) {
	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "memory allocation failed")
	}

	s := &FileStore{
		file: file,
		data: data,
	}

	if s.uuid() == 0 {
		if err := s.assignUUID(); err != nil {
			_ = unix.Munmap(data)
			return nil, nil, err
		}
	}

	return s, func() {
		_ = unix.Munmap(data)
		_ = file.Close()
	}, nil
}

// FileStore is a real memory-mapped file store.
type FileStore struct {
	file *os.File
	data []byte
}

// UUID returns the pool's UUID.
func (s *FileStore) UUID() uint64 {
	return s.uuid()
}

// Size returns the size of the store.
func (s *FileStore) Size() uint64 {
	return uint64(len(s.data))
}

// Bytes returns the mapped region.
func (s *FileStore) Bytes() []byte {
	return s.data
}

// Sync syncs pending writes.
func (s *FileStore) Sync() error {
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(s.file.Sync())
}

func (s *FileStore) uuid() uint64 {
	return binary.LittleEndian.Uint64(s.data[uuidOffset : uuidOffset+8])
}

func (s *FileStore) assignUUID() error {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return errors.Wrap(err, "generating pool UUID failed")
	}
	// A zero UUID is reserved to mean "uninitialized"; force it non-zero.
	if binary.LittleEndian.Uint64(b[:]) == 0 {
		b[0] = 1
	}
	copy(s.data[uuidOffset:uuidOffset+8], b[:])
	return s.Sync()
}
