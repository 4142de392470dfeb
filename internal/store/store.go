// Package store provides SQLite persistence for labeld: stable group
// identities, the last published state per group, and the command ledger.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database connection
type Store struct {
	db *sql.DB
}

// Open opens the database and initializes the schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Group identities - one stable id per (label, type) pair so published
	// ids survive restarts and config reordering
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS label_groups (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			group_type TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(label, group_type)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create label_groups table: %w", err)
	}

	// Last published state per group, so the API has data before the first
	// recompute after a restart
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS group_state (
			group_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create group_state table: %w", err)
	}

	// Command ledger - append-only history of dispatched commands
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS command_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_id TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_group_ts ON command_ledger(group_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create command_ledger table: %w", err)
	}

	return nil
}

// EnsureGroup returns the stable id for a (label, type) pair, creating one
// when the pair is seen for the first time.
func (s *Store) EnsureGroup(label, groupType string) (string, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM label_groups WHERE label = ? AND group_type = ?
	`, label, groupType).Scan(&id)

	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up group: %w", err)
	}

	id = uuid.NewString()
	_, err = s.db.Exec(`
		INSERT INTO label_groups (id, label, group_type, created_at)
		VALUES (?, ?, ?, ?)
	`, id, label, groupType, time.Now().UTC().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to create group: %w", err)
	}

	return id, nil
}

// SaveState persists the last published state for a group.
func (s *Store) SaveState(groupID string, state any) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO group_state (group_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, groupID, string(payload), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

// LoadState reads the last persisted state for a group into out.
// Returns false when nothing was persisted.
func (s *Store) LoadState(groupID string, out any) (bool, error) {
	var payload string
	err := s.db.QueryRow(`
		SELECT payload FROM group_state WHERE group_id = ?
	`, groupID).Scan(&payload)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load state: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return true, nil
}

// ClearStates drops all persisted group states (--reset-state).
func (s *Store) ClearStates() error {
	_, err := s.db.Exec(`DELETE FROM group_state`)
	if err != nil {
		return fmt.Errorf("failed to clear states: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
