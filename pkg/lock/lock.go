// Package lock serializes work on a key across goroutines or processes.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired is returned when a lock cannot be acquired before the wait timeout
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned when releasing a lock that has expired or was taken over
	ErrNotHeld = errors.New("lock not held")
)

type Lock interface {
	Release(ctx context.Context) error
}

// Renewable is a lock that expires unless extended
type Renewable interface {
	Lock
	Extend(ctx context.Context, ttl time.Duration) error
	TTL() time.Duration
}

// Locker acquires exclusive locks by key. Acquire blocks until the lock is
// held, the wait timeout passes (ErrNotAcquired) or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lock, error)
}

// Options bound how long a lock is held and how long Acquire waits for it
type Options struct {
	TTL         time.Duration
	WaitTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{TTL: 30 * time.Second, WaitTimeout: 10 * time.Second}
}

// WithLock runs fn while holding the lock for key. A Renewable lock is
// extended every third of its TTL until fn returns.
func WithLock(ctx context.Context, locker Locker, key string, fn func(ctx context.Context) error) error {
	l, err := locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release(context.WithoutCancel(ctx)) }()

	if r, ok := l.(Renewable); ok && r.TTL() > 0 {
		stop := keepAlive(ctx, r)
		defer stop()
	}
	return fn(ctx)
}

func keepAlive(ctx context.Context, l Renewable) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.TTL() / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// a lost lock leaves the version check on write to catch the overlap
				if err := l.Extend(ctx, l.TTL()); err != nil {
					return
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
