package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

const lastRunKey = "last_run_at"

// LastRunAt returns the start time (unix ms) of the previous maintenance
// run, or nil if none has completed yet. Access events are judged "since the
// last run" against this watermark.
func (db *DB) LastRunAt() (*int64, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM maintenance_meta WHERE key = ?`, lastRunKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read last run watermark: %w", err)
	}

	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last run watermark %q: %w", value, err)
	}
	return &ms, nil
}

// SetLastRunAt stores the maintenance watermark.
func (db *DB) SetLastRunAt(ms int64) error {
	_, err := db.Exec(`
		INSERT INTO maintenance_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastRunKey, strconv.FormatInt(ms, 10))
	if err != nil {
		return fmt.Errorf("set last run watermark: %w", err)
	}
	return nil
}
