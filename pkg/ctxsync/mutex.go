// Package ctxsync contains locks whose acquisition can be abandoned through a
// [context.Context].
package ctxsync

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// writerWeight is the weight a writer acquires: the whole semaphore.
const writerWeight = 1 << 30

// RWMutex is a reader/writer mutual exclusion lock. Waiters are served in
// arrival order, so a waiting writer holds back the readers that come after
// it. The zero value is not usable; use [NewRWMutex].
type RWMutex struct {
	sem *semaphore.Weighted
}

// NewRWMutex returns an unlocked RWMutex.
func NewRWMutex() *RWMutex {
	return &RWMutex{sem: semaphore.NewWeighted(writerWeight)}
}

// Lock locks m for writing. It returns the context error, without holding
// the lock, when ctx is done before the lock is acquired. A context that is
// already done never acquires the lock.
func (m *RWMutex) Lock(ctx context.Context) error {
	return m.acquire(ctx, writerWeight)
}

// RLock locks m for reading, with the same context rules as [RWMutex.Lock].
func (m *RWMutex) RLock(ctx context.Context) error {
	return m.acquire(ctx, 1)
}

func (m *RWMutex) acquire(ctx context.Context, n int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.sem.Acquire(ctx, n)
}

// TryLock tries to lock m for writing and reports whether it succeeded.
func (m *RWMutex) TryLock() bool {
	return m.sem.TryAcquire(writerWeight)
}

// Unlock releases a write lock. It panics if m is not locked for writing.
func (m *RWMutex) Unlock() {
	m.sem.Release(writerWeight)
}

// RUnlock releases one read lock. It panics if m is not locked for reading.
func (m *RWMutex) RUnlock() {
	m.sem.Release(1)
}
