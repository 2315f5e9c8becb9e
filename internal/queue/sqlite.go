package queue

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rnaughtonwk/islandora-checksum-checker/internal/audit"
	logx "github.com/rnaughtonwk/islandora-checksum-checker/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteQueue is a persistent FIFO on a SQLite file.
//
// Rows with claimed_at NULL are visible; claiming stamps claimed_at.
// Release re-appends the row at the tail (new seq) so other items get a
// turn before a failed one comes around again.
type sqliteQueue struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Queue, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite queue path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	q := &sqliteQueue{db: db, log: log}
	if err := q.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	// Claims left over from a crashed run become visible again.
	if n, err := q.recoverStaleClaims(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	} else if n > 0 {
		log.Warn("recovered stale queue claims", logx.Int64("count", n))
	}
	return q, nil
}

func (q *sqliteQueue) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, string(b))
	return err
}

func (q *sqliteQueue) recoverStaleClaims(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE work_queue SET claimed_at = NULL WHERE claimed_at IS NOT NULL`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (q *sqliteQueue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

func (q *sqliteQueue) Enqueue(ctx context.Context, items ...audit.WorkItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO work_queue(object_id, payload) VALUES(?, ?)`,
			string(it.ID), nullBytes(it.Payload),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (q *sqliteQueue) Claim(ctx context.Context) (audit.WorkItem, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.WorkItem{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq     int64
		id      string
		payload []byte
	)
	err = tx.QueryRowContext(ctx,
		`SELECT seq, object_id, payload FROM work_queue
		 WHERE claimed_at IS NULL ORDER BY seq LIMIT 1`,
	).Scan(&seq, &id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.WorkItem{}, audit.ErrEmpty
	}
	if err != nil {
		return audit.WorkItem{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE work_queue SET claimed_at = ? WHERE seq = ?`,
		time.Now().UnixMilli(), seq,
	); err != nil {
		return audit.WorkItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return audit.WorkItem{}, err
	}
	return audit.WorkItem{ID: audit.ID(id), Payload: payload}, nil
}

func (q *sqliteQueue) Delete(ctx context.Context, id audit.ID) error {
	// Idempotent: no claimed row for the id means nothing to do.
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM work_queue WHERE object_id = ? AND claimed_at IS NOT NULL`,
		string(id),
	)
	return err
}

func (q *sqliteQueue) Release(ctx context.Context, id audit.ID) error {
	// Re-append at the tail: clearing the claim with a fresh seq keeps the
	// failed item behind everything already waiting.
	_, err := q.db.ExecContext(ctx,
		`UPDATE work_queue
		 SET claimed_at = NULL,
		     seq = (SELECT COALESCE(MAX(seq), 0) + 1 FROM work_queue)
		 WHERE seq = (SELECT seq FROM work_queue
		              WHERE object_id = ? AND claimed_at IS NOT NULL
		              ORDER BY seq LIMIT 1)`,
		string(id),
	)
	return err
}

func (q *sqliteQueue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_queue WHERE claimed_at IS NULL`,
	).Scan(&n)
	return n, err
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
