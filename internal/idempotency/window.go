// Package idempotency remembers the business ids of applied operations so a
// retried submission is rejected instead of applied twice.
package idempotency

import (
	"context"
	"sync"
)

// Window tracks recently applied ids.
type Window interface {
	Seen(ctx context.Context, id string) (bool, error)
	Remember(ctx context.Context, id string) error
}

// Memory keeps the last size ids in a ring. The oldest id is forgotten when
// the ring is full.
type Memory struct {
	mu   sync.Mutex
	ring []string
	next int
	ids  map[string]struct{}
}

var _ Window = (*Memory)(nil)

// NewMemory creates a window holding up to size ids.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1
	}
	return &Memory{
		ring: make([]string, size),
		ids:  make(map[string]struct{}, size),
	}
}

func (m *Memory) Seen(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ids[id]
	return ok, nil
}

func (m *Memory) Remember(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ids[id]; ok {
		return nil
	}
	if old := m.ring[m.next]; old != "" {
		delete(m.ids, old)
	}
	m.ring[m.next] = id
	m.ids[id] = struct{}{}
	m.next = (m.next + 1) % len(m.ring)
	return nil
}

// Len returns the number of remembered ids.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ids)
}

// IDs returns the remembered ids, oldest first.
func (m *Memory) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.ids))
	for i := range m.ring {
		if id := m.ring[(m.next+i)%len(m.ring)]; id != "" {
			out = append(out, id)
		}
	}
	return out
}
