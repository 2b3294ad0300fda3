package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/sorcerai/storm-mcp/internal/config"
)

// Store persists run history: swarm runs, their task ledgers, compressed
// article bodies and schedule state.
type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// Connection pragmas go in the DSN so every pooled connection gets them.
	dsn := cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL lets the web API read while a run is being recorded.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("exec journal_mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS swarm_runs (
			id           TEXT PRIMARY KEY,
			topic        TEXT NOT NULL,
			status       TEXT NOT NULL,
			phase        TEXT NOT NULL,
			topology     TEXT NOT NULL,
			error        TEXT,
			metrics      TEXT NOT NULL,
			started_at   DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_swarm_runs_started ON swarm_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS swarm_tasks (
			id           TEXT PRIMARY KEY,
			swarm_id     TEXT NOT NULL REFERENCES swarm_runs(id) ON DELETE CASCADE,
			type         TEXT NOT NULL,
			agent_id     TEXT,
			backend      TEXT,
			status       TEXT NOT NULL,
			payload      TEXT,
			result       TEXT,
			error        TEXT,
			created_at   DATETIME NOT NULL,
			started_at   DATETIME,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_swarm_tasks_swarm ON swarm_tasks(swarm_id, id)`,
		`CREATE TABLE IF NOT EXISTS articles (
			swarm_id   TEXT PRIMARY KEY REFERENCES swarm_runs(id) ON DELETE CASCADE,
			topic      TEXT NOT NULL,
			words      INTEGER NOT NULL,
			outline    TEXT,
			body       BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			name          TEXT PRIMARY KEY,
			cron          TEXT NOT NULL,
			topic         TEXT NOT NULL,
			length        TEXT,
			depth         TEXT,
			next_run_at   DATETIME,
			last_run_at   DATETIME,
			last_status   TEXT,
			last_error    TEXT,
			last_swarm_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
