package dispatch

import (
	"context"
	"sync"
)

// lockEntry is a one-slot semaphore plus the number of dispatches holding or
// waiting on it.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// deviceLocks serializes dispatches per device index. Entries are reference
// counted and dropped when nobody holds or waits on them.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[int]*lockEntry
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[int]*lockEntry)}
}

func (l *deviceLocks) acquire(device int) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[device]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[device] = entry
	}
	entry.refs++
	return entry
}

func (l *deviceLocks) release(device int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[device]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, device)
	}
}

// Lock blocks until the device is free or ctx is done. The returned function
// must be called exactly once to release it.
func (l *deviceLocks) Lock(ctx context.Context, device int) (func(), error) {
	entry := l.acquire(device)
	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(device)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(device)
		})
	}, nil
}

func (l *deviceLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
