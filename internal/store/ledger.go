package store

import (
	"time"
)

// LedgerEntry is one row of the command ledger.
type LedgerEntry struct {
	ID        int64  `json:"id"`
	GroupID   string `json:"group_id"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// LogCommand appends a dispatched command to the ledger. Ledger failures are
// swallowed by callers: auditing must never block command dispatch.
func (s *Store) LogCommand(groupID, action, target string, ok bool, cmdErr error) error {
	errText := ""
	if cmdErr != nil {
		errText = cmdErr.Error()
	}

	_, err := s.db.Exec(`
		INSERT INTO command_ledger (group_id, action, target, ok, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, groupID, action, target, boolToInt(ok), errText, time.Now().UTC().Unix())
	return err
}

// RecentCommands returns the newest ledger entries for a group, newest first.
func (s *Store) RecentCommands(groupID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, group_id, action, target, ok, error, timestamp
		FROM command_ledger
		WHERE group_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var ok int
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Action, &e.Target, &ok, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		e.OK = ok != 0
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// PruneLedger removes ledger entries older than the retention window.
func (s *Store) PruneLedger(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Unix()
	res, err := s.db.Exec(`DELETE FROM command_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
