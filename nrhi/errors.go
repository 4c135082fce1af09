package nrhi

import (
	"github.com/pkg/errors"

	"github.com/outofforest/nrhi/types"
)

// ErrOutOfPersistentMemory is returned when the allocator cannot satisfy
// an allocation needed by a KV record, a segment's bucket array, or a new
// directory layer. The index stays consistent: no slot, segment pointer,
// or layer link is ever published pointing at a failed allocation. Segments
// materialized or layers added earlier in the same call stay in place.
var ErrOutOfPersistentMemory = types.ErrOutOfPersistentMemory

// ErrCorruptedLayer is returned by Recover when a directory layer's
// checksum does not match its contents.
var ErrCorruptedLayer = errors.New("corrupted directory layer")
