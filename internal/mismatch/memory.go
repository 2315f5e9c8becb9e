package mismatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
)

type entry struct {
	detail  string
	count   int
	firstAt time.Time
	lastAt  time.Time
}

// memoryStore keeps ledger state for the process lifetime only.
type memoryStore struct {
	mu      sync.Mutex
	entries map[audit.ID]*entry
	cursor  int
}

func NewMemory() Store {
	return &memoryStore{entries: map[audit.ID]*entry{}}
}

func (s *memoryStore) Record(_ context.Context, id audit.ID, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e, ok := s.entries[id]; ok {
		e.count++
		e.lastAt = now
		if detail != "" {
			e.detail = detail
		}
		return nil
	}
	s.entries[id] = &entry{detail: detail, count: 1, firstAt: now, lastAt: now}
	return nil
}

func (s *memoryStore) Resolve(_ context.Context, id audit.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *memoryStore) Unresolved(context.Context) ([]audit.Mismatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Mismatch, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, audit.Mismatch{ObjectID: id, Detail: e.detail, Count: e.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out, nil
}

func (s *memoryStore) GetCursor(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

func (s *memoryStore) PutCursor(_ context.Context, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = offset
	return nil
}

func (s *memoryStore) Close() error { return nil }
