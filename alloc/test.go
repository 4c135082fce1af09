package alloc

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"

	"github.com/outofforest/nrhi/persistent"
)

// RunInTest creates an Allocator backed by an anonymous-mmap persistent
// store, with its reclaimer running on a background goroutine group, for
// use in unit tests.
func RunInTest(t *testing.T, size uint64) *Allocator {
	store, storeDeallocFunc, err := persistent.NewMemoryStore(size, false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(storeDeallocFunc)

	a, err := NewAllocator(Config{Store: store})
	if err != nil {
		t.Fatal(err)
	}

	reclaimer := NewReclaimer(a, 1024)
	a.SetReclaimer(reclaimer)

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	group := parallel.NewGroup(ctx)
	group.Spawn("reclaimer", parallel.Continue, func(ctx context.Context) error {
		return reclaimer.Run(ctx, 2)
	})

	t.Cleanup(func() {
		reclaimer.Close()
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			t.Fatal(err)
		}
	})

	return a
}
