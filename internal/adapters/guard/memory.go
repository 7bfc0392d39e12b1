// Package guard provides ResourceGuard implementations that keep the host
// awake while transactions are in flight.
package guard

import "sync"

// Memory is an in-process guard. It only tracks whether it is held.
type Memory struct {
	mu       sync.Mutex
	held     bool
	acquires int
}

// NewMemory creates an unheld guard.
func NewMemory() *Memory { return &Memory{} }

// Acquire marks the guard held. Acquiring a held guard is a no-op.
func (g *Memory) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		g.held = true
		g.acquires++
	}
	return nil
}

// Release marks the guard free.
func (g *Memory) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
	return nil
}

// Held reports whether the guard is held.
func (g *Memory) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// Acquisitions returns how many times the guard went from free to held.
func (g *Memory) Acquisitions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acquires
}
