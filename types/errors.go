package types

import "github.com/pkg/errors"

// ErrOutOfPersistentMemory is returned by Allocator.Alloc when the pool
// cannot satisfy an allocation. The index remains consistent: no slot,
// segment pointer, or directory-layer link is ever published pointing at
// a failed allocation.
var ErrOutOfPersistentMemory = errors.New("out of persistent memory")
