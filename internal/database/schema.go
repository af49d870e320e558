package database

import (
	"fmt"
)

// createSchema creates all tables and indexes if they do not exist yet.
// Safe to run on every open.
func (d *SQLiteStore) createSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS slot_states (
			owner_id     TEXT NOT NULL,
			container_id INTEGER NOT NULL,
			slot_index   INTEGER NOT NULL,
			item_type_id INTEGER NOT NULL,
			quantity     INTEGER NOT NULL,
			last_updated TIMESTAMP NOT NULL,
			PRIMARY KEY (owner_id, container_id, slot_index)
		)`,

		`CREATE TABLE IF NOT EXISTS item_deltas (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id      TEXT NOT NULL,
			season        TEXT NOT NULL,
			container_id  INTEGER NOT NULL,
			slot_index    INTEGER NOT NULL,
			item_type_id  INTEGER NOT NULL,
			quantity      INTEGER NOT NULL,
			context       TEXT NOT NULL DEFAULT '',
			context_label TEXT NOT NULL DEFAULT '',
			run_id        INTEGER,
			created_at    TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_item_deltas_run ON item_deltas(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_item_deltas_owner ON item_deltas(owner_id, season)`,

		`CREATE TABLE IF NOT EXISTS runs (
			id         INTEGER PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			season     TEXT NOT NULL,
			zone       TEXT NOT NULL,
			level_id   INTEGER NOT NULL DEFAULT 0,
			level_type TEXT NOT NULL DEFAULT '',
			level_uid  TEXT NOT NULL DEFAULT '',
			is_hub     INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			ended_at   TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs(owner_id, season)`,

		`CREATE TABLE IF NOT EXISTS price_observations (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			correlation_id INTEGER NOT NULL,
			item_type_id   INTEGER NOT NULL,
			prices         TEXT NOT NULL,
			observed_at    TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_obs_item ON price_observations(item_type_id)`,

		`CREATE TABLE IF NOT EXISTS checkpoints (
			file_identity TEXT PRIMARY KEY,
			byte_offset   INTEGER NOT NULL,
			file_size     INTEGER NOT NULL,
			updated_at    TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// validateSchema checks that the expected tables exist.
func (d *SQLiteStore) validateSchema() error {
	required := []string{"slot_states", "item_deltas", "runs", "price_observations", "checkpoints"}

	for _, table := range required {
		var count int
		err := d.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to query sqlite_master: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}
	return nil
}
