// Package sqlite provides SQLite-based persistent storage for the
// orchestrator's device fleet, model registry and training jobs. Uses
// WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL,
			device_model        TEXT NOT NULL DEFAULT '',
			os_version          TEXT NOT NULL DEFAULT '',
			chip                TEXT NOT NULL DEFAULT '',
			memory_bytes        INTEGER NOT NULL DEFAULT 0,
			cpu_cores           INTEGER NOT NULL DEFAULT 0,
			gpu_cores           INTEGER NOT NULL DEFAULT 0,
			neural_engine_cores INTEGER NOT NULL DEFAULT 0,
			battery_level       REAL,
			battery_state       TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL DEFAULT 'online',
			metrics             TEXT NOT NULL DEFAULT '{}',
			registered_at       INTEGER NOT NULL,
			last_seen_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status)`,

		`CREATE TABLE IF NOT EXISTS models (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			architecture    TEXT NOT NULL,
			version         INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'initial',
			parent_model_id TEXT,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS training_jobs (
			id            TEXT PRIMARY KEY,
			model_id      TEXT REFERENCES models(id),
			status        TEXT NOT NULL DEFAULT 'pending',
			num_rounds    INTEGER NOT NULL,
			current_round INTEGER NOT NULL DEFAULT 0,
			min_devices   INTEGER NOT NULL DEFAULT 1,
			learning_rate REAL NOT NULL,
			round_metrics TEXT,
			config        TEXT,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL,
			completed_at  INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON training_jobs(status)`,
	}

	for i, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
