// Package runguard provides a process-wide set of keys with atomic
// insert-if-absent, used to keep one test run per (owner, widget).
package runguard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Guard tracks held keys.
type Guard interface {
	// Acquire atomically inserts key. It returns ErrHeld if the key is
	// already present and ErrFull if the guard is at capacity.
	Acquire(ctx context.Context, key string) error

	// Release removes key. Releasing an absent key is a no-op.
	Release(ctx context.Context, key string)

	// Held reports whether key is present.
	Held(ctx context.Context, key string) bool

	Size() int64
}

// TestRunKey builds the key guarding a simulator run.
func TestRunKey(owner, widget string) string {
	return fmt.Sprintf("%s:tests:%s", owner, widget)
}

// inMemoryGuard implements Guard with a mutex-protected set.
// maxSize <= 0 means unbounded.
type inMemoryGuard struct {
	mu      sync.Mutex
	held    map[string]struct{}
	maxSize int
	size    atomic.Int64
}

// NewInMemoryGuard creates an empty guard.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		held: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *inMemoryGuard) Acquire(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		return fmt.Errorf("%w: %s", ErrHeld, key)
	}
	if g.maxSize > 0 && len(g.held) >= g.maxSize {
		return fmt.Errorf("%w: %d keys held", ErrFull, len(g.held))
	}
	g.held[key] = struct{}{}
	g.size.Add(1)
	return nil
}

func (g *inMemoryGuard) Release(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		delete(g.held, key)
		g.size.Add(-1)
	}
}

func (g *inMemoryGuard) Held(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}

// Size returns the number of held keys.
func (g *inMemoryGuard) Size() int64 {
	return g.size.Load()
}
