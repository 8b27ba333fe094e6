// Package keyedmutex serializes work per key without holding a global lock.
package keyedmutex

import (
	"context"
	"sync"
)

// KeyedMutex hands out one mutex per key, created lazily. Entries are
// reference-counted and removed once the last holder releases, so the
// map does not grow with the number of keys ever seen.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

func New() *KeyedMutex {
	return &KeyedMutex{entries: map[int64]*entry{}}
}

// Lock acquires the mutex for key, waiting until it is free or ctx is done.
// The returned release function must be called exactly once.
func (m *KeyedMutex) Lock(ctx context.Context, key int64) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() { m.release(key, e) }, nil
	case <-ctx.Done():
		m.drop(key, e)
		return nil, ctx.Err()
	}
}

// TryLock acquires the mutex for key only if it is immediately free.
func (m *KeyedMutex) TryLock(key int64) (func(), bool) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() { m.release(key, e) }, true
	default:
		m.drop(key, e)
		return nil, false
	}
}

func (m *KeyedMutex) release(key int64, e *entry) {
	<-e.ch
	m.drop(key, e)
}

func (m *KeyedMutex) drop(key int64, e *entry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}
