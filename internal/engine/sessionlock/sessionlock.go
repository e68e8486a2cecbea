// Package sessionlock provides keyed mutexes so that submissions against the
// same session serialize while unrelated sessions proceed in parallel.
package sessionlock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out one mutex per key. Entries are reference counted and
// released once the last holder unlocks, so idle sessions cost nothing.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock blocks until the key's mutex is held and returns the unlock function.
func (l *Locker) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
