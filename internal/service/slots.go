package service

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// SlotLimiter bounds concurrent engine calls across the worker pool and the
// synchronous stream path.
type SlotLimiter struct {
	size  int64
	sem   *semaphore.Weighted
	inUse atomic.Int64
}

// NewSlotLimiter creates a limiter with size slots (at least one).
func NewSlotLimiter(size int) *SlotLimiter {
	n := int64(max(size, 1))
	return &SlotLimiter{size: n, sem: semaphore.NewWeighted(n)}
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// function is idempotent.
func (l *SlotLimiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	l.inUse.Add(1)
	return l.releaser(), nil
}

// TryAcquire takes a slot without blocking.
func (l *SlotLimiter) TryAcquire() (func(), bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	l.inUse.Add(1)
	return l.releaser(), true
}

// Size returns the number of slots.
func (l *SlotLimiter) Size() int { return int(l.size) }

// InUse returns the number of slots currently held.
func (l *SlotLimiter) InUse() int { return int(l.inUse.Load()) }

func (l *SlotLimiter) releaser() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.inUse.Add(-1)
			l.sem.Release(1)
		})
	}
}
