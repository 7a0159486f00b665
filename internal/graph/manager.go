package graph

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/engram-causal/internal/domain"
)

const (
	DefaultLockRetries = 8
	DefaultLockBackoff = 5 * time.Millisecond

	maxLockBackoff = 500 * time.Millisecond
)

// Manager owns the live graph. Readers share the lock, writers are exclusive.
// Acquisition is bounded: a lock that stays busy past the retry budget
// surfaces as domain.ErrConcurrencyTimeout.
type Manager struct {
	mu      sync.RWMutex
	graph   *Graph
	retries int
	backoff time.Duration
}

func NewManager(retries int, backoff time.Duration) *Manager {
	if retries < 0 {
		retries = DefaultLockRetries
	}
	if backoff <= 0 {
		backoff = DefaultLockBackoff
	}
	return &Manager{
		graph:   New(),
		retries: retries,
		backoff: backoff,
	}
}

// Read runs fn with shared access. fn must not retain g.
func (m *Manager) Read(ctx context.Context, fn func(g *Graph) error) error {
	if err := m.acquire(ctx, m.mu.TryRLock); err != nil {
		return err
	}
	defer m.mu.RUnlock()
	return fn(m.graph)
}

// Write runs fn with exclusive access. fn must leave the graph unchanged
// when it returns an error.
func (m *Manager) Write(ctx context.Context, fn func(g *Graph) error) error {
	if err := m.acquire(ctx, m.mu.TryLock); err != nil {
		return err
	}
	defer m.mu.Unlock()
	return fn(m.graph)
}

// Snapshot returns a clone taken under the read lock.
func (m *Manager) Snapshot(ctx context.Context) (*Graph, error) {
	var snap *Graph
	err := m.Read(ctx, func(g *Graph) error {
		snap = g.Clone()
		return nil
	})
	return snap, err
}

// Replace swaps in a freshly rebuilt graph.
func (m *Manager) Replace(ctx context.Context, g *Graph) error {
	return m.Write(ctx, func(*Graph) error {
		m.graph = g
		return nil
	})
}

func (m *Manager) acquire(ctx context.Context, try func() bool) error {
	wait := m.backoff
	for attempt := 0; ; attempt++ {
		if try() {
			return nil
		}
		if attempt >= m.retries {
			return domain.ErrConcurrencyTimeout
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if wait < maxLockBackoff {
			wait *= 2
		}
	}
}
