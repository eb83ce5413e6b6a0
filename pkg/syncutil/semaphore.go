// Package syncutil holds small concurrency primitives shared by the
// scoring pipeline.
package syncutil

import (
	"context"
	"sync/atomic"
)

// Semaphore bounds the number of concurrently scored documents so a large
// corpus cannot explode the goroutine count.
type Semaphore struct {
	sem     chan struct{}
	dropped atomic.Int64
}

// NewSemaphore creates a semaphore with the given capacity.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 16
	}
	return &Semaphore{
		sem: make(chan struct{}, capacity),
	}
}

// Acquire blocks until a slot is available or the context is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire attempts to acquire a slot without blocking.
// Returns false if at capacity; the drop is counted for monitoring.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Release returns a slot to the semaphore.
// Must be called after a successful Acquire or TryAcquire.
func (s *Semaphore) Release() {
	select {
	case <-s.sem:
	default:
		// Shouldn't happen - releasing without acquiring
	}
}

// InUse returns the number of slots currently in use.
func (s *Semaphore) InUse() int {
	return len(s.sem)
}

// DroppedCount returns the number of non-blocking acquisitions rejected
// at capacity. Useful for backpressure monitoring.
func (s *Semaphore) DroppedCount() int64 {
	return s.dropped.Load()
}
