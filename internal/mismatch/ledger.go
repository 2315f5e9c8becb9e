package mismatch

import (
	"errors"
	"strings"
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// Config configures the mismatch ledger.
//
// Driver values:
//   - "memory": process-lifetime only (tests, dry runs)
//   - "file":   jsonl journal + snapshot next to Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists unresolved mismatches and the sweep cursor across ticks.
type Store interface {
	audit.Ledger
	Close() error
}

// Open initializes the configured ledger.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown ledger driver: " + driver)
	}
}
