package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchWriter fans a slice of operations out to bounded concurrent appliers
// and collects the first error, built on golang.org/x/sync/errgroup the way
// the pack's erigon-scale repos use it for bounded parallel work (spec
// §5: full-sync catch-up applies a batch of missing operations concurrently
// rather than one at a time).
type BatchWriter struct {
	maxConcurrent int
}

// NewBatchWriter builds a BatchWriter capping concurrent applies at
// maxConcurrent.
func NewBatchWriter(maxConcurrent int) *BatchWriter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &BatchWriter{maxConcurrent: maxConcurrent}
}

// Apply runs fn(op) for every op in ops, bounded to maxConcurrent in flight,
// and returns the first error encountered (if any); the other goroutines
// are allowed to finish since apply is idempotent per operation.
func (b *BatchWriter) Apply(ctx context.Context, ops []SignedOperation, fn func(context.Context, SignedOperation) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrent)
	for _, op := range ops {
		op := op
		g.Go(func() error {
			return fn(gctx, op)
		})
	}
	return g.Wait()
}

// ApplyN runs fn(i) for i in [0, n), bounded to maxConcurrent in flight.
// Used where the batch isn't a []SignedOperation (e.g. full-sync value
// entries), since Go methods can't add their own type parameters.
func (b *BatchWriter) ApplyN(ctx context.Context, n int, fn func(context.Context, int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrent)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
