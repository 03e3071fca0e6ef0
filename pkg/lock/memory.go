package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is an in-process keyed mutex for single-instance deployments.
// Entries are reference counted and dropped once no one holds or waits on them.
type MemoryLocker struct {
	mu          sync.Mutex
	keys        map[string]*memoryEntry
	waitTimeout time.Duration
}

type memoryEntry struct {
	sem  chan struct{}
	refs int
}

func NewMemoryLocker(waitTimeout time.Duration) *MemoryLocker {
	return &MemoryLocker{keys: make(map[string]*memoryEntry), waitTimeout: waitTimeout}
}

type memoryLock struct {
	locker *MemoryLocker
	key    string
	once   sync.Once
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	entry, ok := l.keys[key]
	if !ok {
		entry = &memoryEntry{sem: make(chan struct{}, 1)}
		l.keys[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.waitTimeout > 0 {
		timer := time.NewTimer(l.waitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case entry.sem <- struct{}{}:
		return &memoryLock{locker: l, key: key}, nil
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	case <-timeout:
		l.unref(key)
		return nil, ErrNotAcquired
	}
}

func (l *MemoryLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.keys[key]
	entry.refs--
	if entry.refs == 0 {
		delete(l.keys, key)
	}
}

func (lock *memoryLock) Release(_ context.Context) error {
	err := ErrNotHeld
	lock.once.Do(func() {
		lock.locker.mu.Lock()
		entry := lock.locker.keys[lock.key]
		lock.locker.mu.Unlock()
		<-entry.sem
		lock.locker.unref(lock.key)
		err = nil
	})
	return err
}
