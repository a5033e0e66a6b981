package core

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ResourceManager bounds the number of concurrently in-flight operations
// (MAX_CONCURRENT_OPS, spec §5) using a weighted semaphore, the same
// primitive golang.org/x/sync/semaphore offers for exactly this kind of
// admission control.
type ResourceManager struct {
	sem *semaphore.Weighted
	max int64
}

// NewResourceManager builds a ResourceManager admitting at most max
// concurrent operations.
func NewResourceManager(max int) *ResourceManager {
	return &ResourceManager{sem: semaphore.NewWeighted(int64(max)), max: int64(max)}
}

// Guard is a held permit; call Release exactly once, on every exit path
// including error returns, to avoid leaking concurrency slots.
type Guard struct {
	sem *semaphore.Weighted
}

// Release frees the permit held by Guard. Safe to call at most once.
func (g *Guard) Release() {
	if g.sem != nil {
		g.sem.Release(1)
		g.sem = nil
	}
}

// Acquire blocks until a concurrency slot is free or ctx is done. The
// returned Guard must be released by the caller.
func (r *ResourceManager) Acquire(ctx context.Context) (*Guard, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, ErrResourceExhausted
	}
	return &Guard{sem: r.sem}, nil
}

// TryAcquire attempts a non-blocking acquire, returning false immediately
// if no slot is free.
func (r *ResourceManager) TryAcquire() (*Guard, bool) {
	if r.sem.TryAcquire(1) {
		return &Guard{sem: r.sem}, true
	}
	return nil, false
}

// RunBlocking runs fn under an acquired permit on its own goroutine, so a
// gossip-subscriber goroutine reading off a libp2p stream can hand CPU-bound
// work (msgpack encode/decode, BLAKE3 hashing) to the bounded pool instead of
// blocking its own read loop on it (spec §5).
func (r *ResourceManager) RunBlocking(ctx context.Context, fn func() error) error {
	guard, err := r.Acquire(ctx)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		defer guard.Release()
		errCh <- fn()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
