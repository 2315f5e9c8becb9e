package mismatch

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

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite ledger path is required")
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

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Record(ctx context.Context, id audit.ID, detail string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mismatch(object_id, detail, count, first_at, last_at)
		 VALUES(?,?,1,?,?)
		 ON CONFLICT(object_id) DO UPDATE SET
		     count = count + 1,
		     last_at = excluded.last_at,
		     detail = CASE WHEN excluded.detail != '' THEN excluded.detail ELSE detail END`,
		string(id), detail, now, now,
	)
	return err
}

func (s *sqliteStore) Resolve(ctx context.Context, id audit.ID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mismatch WHERE object_id = ?`, string(id))
	return err
}

func (s *sqliteStore) Unresolved(ctx context.Context) ([]audit.Mismatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, COALESCE(detail, ''), count FROM mismatch ORDER BY object_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Mismatch
	for rows.Next() {
		var m audit.Mismatch
		var id string
		if err := rows.Scan(&id, &m.Detail, &m.Count); err != nil {
			return nil, err
		}
		m.ObjectID = audit.ID(id)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetCursor(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = 'cursor'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (s *sqliteStore) PutCursor(ctx context.Context, offset int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state(key, value) VALUES('cursor', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		offset,
	)
	return err
}
