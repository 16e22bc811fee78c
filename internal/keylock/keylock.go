// Package keylock provides per-key mutual exclusion: callers holding
// different keys proceed in parallel, callers sharing a key are serialized.
// Entries are reference counted and dropped once no caller holds or waits
// on them, so the registry does not grow with the number of keys seen.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map is a registry of per-key mutexes. The zero value is ready to use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Lock blocks until key is free and returns the function that releases it.
// The release function must be called exactly once; defer it.
func (m *Map) Lock(key string) (unlock func()) {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[string]*entry)
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

// Len returns the number of keys currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
