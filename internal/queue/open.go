package queue

import (
	"errors"
	"strings"
	"time"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

// Config configures the queue backend.
//
// Driver values:
//   - "memory": in-process FIFO (default)
//   - "sqlite": SQLite database file at Path
//   - "nats":   JetStream work queue at URL, stream Stream
type Config struct {
	Driver      string
	Path        string        // sqlite only
	BusyTimeout time.Duration // sqlite only; 0 means default
	URL         string        // nats only
	Stream      string        // nats only; default "CHECKSUM_AUDIT"
}

// Queue extends audit.Queue with lifecycle management.
type Queue interface {
	audit.Queue
	Close() error
}

// Open initializes the configured queue backend.
func Open(cfg Config, log logx.Logger) (Queue, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "nats", "jetstream":
		return openJetStream(cfg, log)
	default:
		return nil, errors.New("unknown queue driver: " + driver)
	}
}
