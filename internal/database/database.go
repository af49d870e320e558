package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the persistence boundary consumed by the collector. All calls
// are made from a single sequential worker.
type Store interface {
	UpsertSlotState(state SlotState) error
	LoadSlotStates(ownerID string) ([]SlotState, error)
	ClearContainerSlots(containerID int, ownerID string) error

	InsertDelta(delta *ItemDelta) error
	DeltasForRun(runID int64) ([]ItemDelta, error)

	InsertRun(run *Run) error
	UpdateRunEnd(runID int64, endedAt time.Time) error
	ActiveRun(ownerID string) (*Run, error)
	MaxRunID() (int64, error)

	SaveCheckpoint(cp Checkpoint) error
	GetCheckpoint(fileIdentity string) (*Checkpoint, error)

	UpsertPriceObservation(obs PriceObservation) error

	Close() error
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db       *sql.DB
	filename string

	// Prepared statements for the hot paths
	upsertSlotStmt  *sql.Stmt
	insertDeltaStmt *sql.Stmt
}

// Open opens (creating if necessary) a SQLite store at the given path.
// ":memory:" is supported for tests.
func Open(filename string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single sequential writer; more connections just invite SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &SQLiteStore{db: db, filename: filename}

	if err = d.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err = d.validateSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid database schema: %w", err)
	}
	if err = d.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return d, nil
}

func (d *SQLiteStore) prepareStatements() error {
	var err error

	d.upsertSlotStmt, err = d.db.Prepare(`
		INSERT INTO slot_states (owner_id, container_id, slot_index, item_type_id, quantity, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, container_id, slot_index)
		DO UPDATE SET item_type_id=excluded.item_type_id,
		              quantity=excluded.quantity,
		              last_updated=excluded.last_updated`)
	if err != nil {
		return err
	}

	d.insertDeltaStmt, err = d.db.Prepare(`
		INSERT INTO item_deltas (owner_id, season, container_id, slot_index, item_type_id,
		                         quantity, context, context_label, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	return err
}

// Close closes prepared statements and the database connection.
func (d *SQLiteStore) Close() error {
	if d.upsertSlotStmt != nil {
		d.upsertSlotStmt.Close()
	}
	if d.insertDeltaStmt != nil {
		d.insertDeltaStmt.Close()
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

// GetDB exposes the underlying handle for advanced operations and tests.
func (d *SQLiteStore) GetDB() *sql.DB {
	return d.db
}

// UpsertSlotState writes the authoritative state of one slot.
func (d *SQLiteStore) UpsertSlotState(state SlotState) error {
	_, err := d.upsertSlotStmt.Exec(
		state.OwnerID, state.Key.ContainerID, state.Key.SlotIndex,
		state.ItemTypeID, state.Quantity, state.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert slot %s: %w", state.Key, err)
	}
	return nil
}

// LoadSlotStates returns all known slot states for an owner.
func (d *SQLiteStore) LoadSlotStates(ownerID string) ([]SlotState, error) {
	rows, err := d.db.Query(`
		SELECT container_id, slot_index, item_type_id, quantity, last_updated
		FROM slot_states WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load slot states: %w", err)
	}
	defer rows.Close()

	var states []SlotState
	for rows.Next() {
		s := SlotState{OwnerID: ownerID}
		if err := rows.Scan(&s.Key.ContainerID, &s.Key.SlotIndex, &s.ItemTypeID, &s.Quantity, &s.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan slot state: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// ClearContainerSlots removes all slot rows for one container, used when a
// fresh snapshot batch supersedes everything previously known about it.
func (d *SQLiteStore) ClearContainerSlots(containerID int, ownerID string) error {
	_, err := d.db.Exec(
		`DELETE FROM slot_states WHERE owner_id = ? AND container_id = ?`,
		ownerID, containerID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear container %d: %w", containerID, err)
	}
	return nil
}

// InsertDelta records an item delta and fills in its assigned id.
func (d *SQLiteStore) InsertDelta(delta *ItemDelta) error {
	var runID sql.NullInt64
	if delta.RunID != nil {
		runID = sql.NullInt64{Int64: *delta.RunID, Valid: true}
	}

	res, err := d.insertDeltaStmt.Exec(
		delta.OwnerID, delta.Season,
		delta.Key.ContainerID, delta.Key.SlotIndex, delta.ItemTypeID,
		delta.Quantity, delta.Context, delta.ContextLabel, runID, delta.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delta for slot %s: %w", delta.Key, err)
	}

	delta.ID, err = res.LastInsertId()
	return err
}

// DeltasForRun returns all deltas attributed to a run, oldest first.
func (d *SQLiteStore) DeltasForRun(runID int64) ([]ItemDelta, error) {
	rows, err := d.db.Query(`
		SELECT id, owner_id, season, container_id, slot_index, item_type_id,
		       quantity, context, context_label, run_id, created_at
		FROM item_deltas WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deltas for run %d: %w", runID, err)
	}
	defer rows.Close()

	return scanDeltas(rows)
}

func scanDeltas(rows *sql.Rows) ([]ItemDelta, error) {
	var deltas []ItemDelta
	for rows.Next() {
		var delta ItemDelta
		var runID sql.NullInt64
		err := rows.Scan(
			&delta.ID, &delta.OwnerID, &delta.Season,
			&delta.Key.ContainerID, &delta.Key.SlotIndex, &delta.ItemTypeID,
			&delta.Quantity, &delta.Context, &delta.ContextLabel, &runID, &delta.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delta: %w", err)
		}
		if runID.Valid {
			delta.RunID = &runID.Int64
		}
		deltas = append(deltas, delta)
	}
	return deltas, rows.Err()
}

// InsertRun stores a newly started run.
func (d *SQLiteStore) InsertRun(run *Run) error {
	var endedAt sql.NullTime
	if run.EndedAt != nil {
		endedAt = sql.NullTime{Time: *run.EndedAt, Valid: true}
	}

	_, err := d.db.Exec(`
		INSERT INTO runs (id, owner_id, season, zone, level_id, level_type, level_uid, is_hub, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.OwnerID, run.Season, run.Zone,
		run.LevelID, run.LevelType, run.LevelUID,
		run.IsHub, run.StartedAt, endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %d: %w", run.ID, err)
	}
	return nil
}

// UpdateRunEnd closes a run.
func (d *SQLiteStore) UpdateRunEnd(runID int64, endedAt time.Time) error {
	_, err := d.db.Exec(`UPDATE runs SET ended_at = ? WHERE id = ?`, endedAt, runID)
	if err != nil {
		return fmt.Errorf("failed to end run %d: %w", runID, err)
	}
	return nil
}

// ActiveRun returns the owner's run with no end timestamp, or nil.
func (d *SQLiteStore) ActiveRun(ownerID string) (*Run, error) {
	row := d.db.QueryRow(`
		SELECT id, owner_id, season, zone, level_id, level_type, level_uid, is_hub, started_at
		FROM runs WHERE owner_id = ? AND ended_at IS NULL
		ORDER BY id DESC LIMIT 1`, ownerID)

	var run Run
	err := row.Scan(
		&run.ID, &run.OwnerID, &run.Season, &run.Zone,
		&run.LevelID, &run.LevelType, &run.LevelUID, &run.IsHub, &run.StartedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load active run: %w", err)
	}
	return &run, nil
}

// LoadRun returns a run by id, or nil when absent.
func (d *SQLiteStore) LoadRun(runID int64) (*Run, error) {
	row := d.db.QueryRow(`
		SELECT id, owner_id, season, zone, level_id, level_type, level_uid, is_hub, started_at, ended_at
		FROM runs WHERE id = ?`, runID)

	var run Run
	var endedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.OwnerID, &run.Season, &run.Zone,
		&run.LevelID, &run.LevelType, &run.LevelUID, &run.IsHub, &run.StartedAt, &endedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", runID, err)
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return &run, nil
}

// MaxRunID returns the highest run id ever stored, 0 when none exist.
// Run ids must never repeat, so the segmenter seeds from this at startup.
func (d *SQLiteStore) MaxRunID() (int64, error) {
	var maxID sql.NullInt64
	if err := d.db.QueryRow(`SELECT MAX(id) FROM runs`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to query max run id: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return maxID.Int64, nil
}

// SaveCheckpoint overwrites the resume checkpoint for one file.
func (d *SQLiteStore) SaveCheckpoint(cp Checkpoint) error {
	_, err := d.db.Exec(`
		INSERT INTO checkpoints (file_identity, byte_offset, file_size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_identity)
		DO UPDATE SET byte_offset=excluded.byte_offset,
		              file_size=excluded.file_size,
		              updated_at=excluded.updated_at`,
		cp.FileIdentity, cp.ByteOffset, cp.FileSize, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint loads the resume checkpoint for one file, or nil.
func (d *SQLiteStore) GetCheckpoint(fileIdentity string) (*Checkpoint, error) {
	row := d.db.QueryRow(`
		SELECT file_identity, byte_offset, file_size
		FROM checkpoints WHERE file_identity = ?`, fileIdentity)

	var cp Checkpoint
	err := row.Scan(&cp.FileIdentity, &cp.ByteOffset, &cp.FileSize)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return &cp, nil
}

// UpsertPriceObservation stores one correlated price observation. The raw
// price list is kept as JSON so downstream aggregation can reprocess it.
func (d *SQLiteStore) UpsertPriceObservation(obs PriceObservation) error {
	prices, err := json.Marshal(obs.Prices)
	if err != nil {
		return fmt.Errorf("failed to encode prices: %w", err)
	}

	_, err = d.db.Exec(`
		INSERT INTO price_observations (correlation_id, item_type_id, prices, observed_at)
		VALUES (?, ?, ?, ?)`,
		obs.CorrelationID, obs.ItemTypeID, string(prices), obs.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert price observation: %w", err)
	}
	return nil
}

// PriceObservations returns observations for one item, newest first.
func (d *SQLiteStore) PriceObservations(itemTypeID int, limit int) ([]PriceObservation, error) {
	rows, err := d.db.Query(`
		SELECT correlation_id, item_type_id, prices, observed_at
		FROM price_observations WHERE item_type_id = ?
		ORDER BY observed_at DESC LIMIT ?`, itemTypeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price observations: %w", err)
	}
	defer rows.Close()

	var observations []PriceObservation
	for rows.Next() {
		var obs PriceObservation
		var prices string
		if err := rows.Scan(&obs.CorrelationID, &obs.ItemTypeID, &prices, &obs.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan price observation: %w", err)
		}
		if err := json.Unmarshal([]byte(prices), &obs.Prices); err != nil {
			return nil, fmt.Errorf("failed to decode prices: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}
