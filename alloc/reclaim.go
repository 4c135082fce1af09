package alloc

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/outofforest/parallel"

	"github.com/outofforest/nrhi/types"
)

// NewReclaimer creates a Reclaimer with the given queue depth. Call Run to
// start its workers, then Allocator.SetReclaimer to attach it so Free
// defers reclamation instead of running it inline.
func NewReclaimer(a *Allocator, queueDepth int) *Reclaimer {
	return &Reclaimer{
		a:    a,
		reqs: make(chan freeReq, queueDepth),
	}
}

// Reclaimer drains freed allocations on background workers, zeroing their
// bytes and returning them to the allocator's freelist off the caller's
// goroutine. This mirrors the teacher's node eraser: freeing a slot must
// not make the goroutine that triggered it (e.g. an inserter growing the
// index) pay for clearing memory it no longer needs.
type Reclaimer struct {
	a    *Allocator
	reqs chan freeReq
}

type freeReq struct {
	addr types.Address
	size uint64
}

func (r *Reclaimer) enqueue(addr types.Address, size uint64) {
	r.reqs <- freeReq{addr: addr, size: size}
}

// Close stops accepting new reclamation requests. Call after the last Free
// that could reach this reclaimer and before Run's context is cancelled, so
// queued requests still drain.
func (r *Reclaimer) Close() {
	close(r.reqs)
}

// Run runs numWorkers reclamation workers until Close is called and the
// queue drains, or ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context, numWorkers uint64) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := range numWorkers {
			spawn(fmt.Sprintf("reclaimer-%02d", i), parallel.Fail, func(ctx context.Context) error {
				for {
					select {
					case <-ctx.Done():
						return errors.WithStack(ctx.Err())
					case req, ok := <-r.reqs:
						if !ok {
							return errors.WithStack(ctx.Err())
						}
						r.a.reclaim(req.addr, req.size)
					}
				}
			})
		}
		return nil
	})
}
