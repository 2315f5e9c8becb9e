package queue

import (
	"context"
	"sync"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
)

// Memory is an in-process FIFO queue with claim visibility tracking.
// Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	visible []audit.WorkItem
	claimed map[audit.ID]audit.WorkItem
}

func NewMemory() *Memory {
	return &Memory{claimed: map[audit.ID]audit.WorkItem{}}
}

func (m *Memory) Enqueue(_ context.Context, items ...audit.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visible = append(m.visible, items...)
	return nil
}

func (m *Memory) Claim(_ context.Context) (audit.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.visible) == 0 {
		return audit.WorkItem{}, audit.ErrEmpty
	}
	it := m.visible[0]
	m.visible = m.visible[1:]
	m.claimed[it.ID] = it
	return it, nil
}

func (m *Memory) Delete(_ context.Context, id audit.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Idempotent: deleting an unclaimed or already-deleted item is a no-op.
	delete(m.claimed, id)
	return nil
}

func (m *Memory) Release(_ context.Context, id audit.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.claimed[id]
	if !ok {
		// Idempotent: already released (or never claimed).
		return nil
	}
	delete(m.claimed, id)
	m.visible = append(m.visible, it)
	return nil
}

func (m *Memory) Depth(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.visible), nil
}

func (m *Memory) Close() error { return nil }
