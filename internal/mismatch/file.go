package mismatch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// fileStore is a dependency-free ledger backend.
//
// Files:
//   - <prefix>.ledger.snapshot.json (periodic snapshot)
//   - <prefix>.ledger.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalPath  string
	journalFile  *os.File

	entries map[audit.ID]*entry
	cursor  int

	writes int
}

const compactEvery = 256

type journalRecord struct {
	Op     string `json:"op"` // "record", "resolve", "cursor"
	ID     string `json:"id,omitempty"`
	Detail string `json:"detail,omitempty"`
	Offset int    `json:"offset,omitempty"`
	At     int64  `json:"at,omitempty"` // unix milli
}

type snapshot struct {
	Cursor  int             `json:"cursor"`
	Entries []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	ID      string `json:"id"`
	Detail  string `json:"detail,omitempty"`
	Count   int    `json:"count"`
	FirstAt int64  `json:"first_at"`
	LastAt  int64  `json:"last_at"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".ledger.snapshot.json",
		journalPath:  prefix + ".ledger.journal.jsonl",
		entries:      map[audit.ID]*entry{},
	}

	_ = s.loadSnapshot()
	_ = s.replayJournal()

	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journalFile = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Compact on close so restarts start from a clean snapshot.
	_ = s.compactLocked()
	if s.journalFile != nil {
		err := s.journalFile.Close()
		s.journalFile = nil
		return err
	}
	return nil
}

func (s *fileStore) Record(_ context.Context, id audit.ID, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e, ok := s.entries[id]; ok {
		e.count++
		e.lastAt = now
		if detail != "" {
			e.detail = detail
		}
	} else {
		s.entries[id] = &entry{detail: detail, count: 1, firstAt: now, lastAt: now}
	}
	return s.appendLocked(journalRecord{Op: "record", ID: string(id), Detail: detail, At: now.UnixMilli()})
}

func (s *fileStore) Resolve(_ context.Context, id audit.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return nil
	}
	delete(s.entries, id)
	return s.appendLocked(journalRecord{Op: "resolve", ID: string(id), At: time.Now().UnixMilli()})
}

func (s *fileStore) Unresolved(context.Context) ([]audit.Mismatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Mismatch, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, audit.Mismatch{ObjectID: id, Detail: e.detail, Count: e.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectID < out[j].ObjectID })
	return out, nil
}

func (s *fileStore) GetCursor(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

func (s *fileStore) PutCursor(_ context.Context, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = offset
	return s.appendLocked(journalRecord{Op: "cursor", Offset: offset, At: time.Now().UnixMilli()})
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journalFile == nil {
		return errors.New("ledger journal closed")
	}
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("ledger compaction failed", logx.Err(err))
		}
	}
	return nil
}

// compactLocked writes the current state as a snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	snap := snapshot{Cursor: s.cursor, Entries: make([]snapshotEntry, 0, len(s.entries))}
	for id, e := range s.entries {
		snap.Entries = append(snap.Entries, snapshotEntry{
			ID:      string(id),
			Detail:  e.detail,
			Count:   e.count,
			FirstAt: e.firstAt.UnixMilli(),
			LastAt:  e.lastAt.UnixMilli(),
		})
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].ID < snap.Entries[j].ID })

	tmp := s.snapshotPath + ".tmp"
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}

	if s.journalFile != nil {
		if err := s.journalFile.Truncate(0); err != nil {
			return err
		}
		if _, err := s.journalFile.Seek(0, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) loadSnapshot() error {
	b, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	s.cursor = snap.Cursor
	for _, e := range snap.Entries {
		s.entries[audit.ID(e.ID)] = &entry{
			detail:  e.Detail,
			count:   e.Count,
			firstAt: time.UnixMilli(e.FirstAt),
			lastAt:  time.UnixMilli(e.LastAt),
		}
	}
	return nil
}

func (s *fileStore) replayJournal() error {
	f, err := os.Open(s.journalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Tolerate a torn tail line from a crash mid-write.
			continue
		}
		switch rec.Op {
		case "record":
			id := audit.ID(rec.ID)
			if e, ok := s.entries[id]; ok {
				e.count++
				e.lastAt = time.UnixMilli(rec.At)
				if rec.Detail != "" {
					e.detail = rec.Detail
				}
			} else {
				s.entries[id] = &entry{
					detail:  rec.Detail,
					count:   1,
					firstAt: time.UnixMilli(rec.At),
					lastAt:  time.UnixMilli(rec.At),
				}
			}
		case "resolve":
			delete(s.entries, audit.ID(rec.ID))
		case "cursor":
			s.cursor = rec.Offset
		}
	}
	return sc.Err()
}
