// Package lifecycle holds the saturating reference count behind the
// process-wide engine epoch.
package lifecycle

import "sync"

// Epoch counts balanced Enter/Leave calls. Leave on a closed epoch is a no-op.
type Epoch struct {
	mu sync.Mutex
	n  uint64
	id uint64 // incremented every time the epoch opens
}

// Enter increments the count and reports whether this call opened the epoch.
func (e *Epoch) Enter() (opened bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.n == ^uint64(0) {
		return false
	}
	e.n++
	if e.n == 1 {
		e.id++
		return true
	}
	return false
}

// Leave decrements the count, floored at zero, and reports whether this call
// closed the epoch.
func (e *Epoch) Leave() (closed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.n == 0 {
		return false
	}
	e.n--
	return e.n == 0
}

// Active reports whether the epoch is open.
func (e *Epoch) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n > 0
}

// Count returns the current count.
func (e *Epoch) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

// Generation returns how many times the epoch has opened.
func (e *Epoch) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}
