// Package keylock provides a mutex per key.
//
// Calls for different keys run in parallel; calls for the same key are
// serialized. Entries are reference counted and removed when no caller holds
// or waits on them, so the map does not grow with every key ever seen.
package keylock

import "sync"

// Map is a set of per-key mutexes. The zero value is ready to use.
type Map[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns its unlock function.
func (m *Map[K]) Lock(key K) (unlock func()) {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[K]*entry)
	}
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			m.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		})
	}
}

// With runs fn while holding the mutex for key.
func (m *Map[K]) With(key K, fn func()) {
	unlock := m.Lock(key)
	defer unlock()
	fn()
}

// size returns the number of keys currently held or waited on.
func (m *Map[K]) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
