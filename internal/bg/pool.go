package bg

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool runs CPU-bound functions with at most Size running at once.
// Callers block in Run until a slot is free or ctx is done.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool returns a Pool of the given size. Size <= 0 means GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size is the maximum number of concurrently running functions.
func (p *Pool) Size() int {
	return p.size
}

// Run executes fn on the calling goroutine once a slot is acquired.
func (p *Pool) Run(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker slot: %w", err)
	}
	defer p.sem.Release(1)
	fn()
	return nil
}

// Do runs fn through p and returns its result.
func Do[T any](ctx context.Context, p *Pool, fn func() T) (T, error) {
	var out T
	err := p.Run(ctx, func() { out = fn() })
	return out, err
}
