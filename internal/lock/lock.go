// Package lock provides the exclusive admission scope taken per
// (facility, date) key.  A Locker must never leave a key held after the
// caller's context is cancelled, and the returned unlock func is safe to
// call more than once.
package lock

import (
	"context"
	"sync"
)

// Locker acquires exclusive ownership of a key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker.  Each key gets its own one-slot
// semaphore; entries are reference counted and dropped once no goroutine
// holds or waits for them, so the map only grows with concurrent keys.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyEntry)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyEntry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			m.drop(key, e)
		})
	}, nil
}

func (m *KeyedMutex) drop(key string, e *keyEntry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// Len returns the number of keys currently held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
