package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "mem_items: knowledge items under decay management",
		SQL: `
CREATE TABLE mem_items (
    id                 TEXT PRIMARY KEY,
    category           TEXT NOT NULL DEFAULT 'general',
    content            TEXT,

    -- Classification
    importance         REAL NOT NULL DEFAULT 0.5,
    confidence         REAL NOT NULL DEFAULT 0,
    needs_review       INTEGER NOT NULL DEFAULT 0,
    needs_reclassify   INTEGER NOT NULL DEFAULT 0,

    -- Decay
    stability          REAL NOT NULL DEFAULT 0,
    decay_score        REAL NOT NULL DEFAULT 1.0,
    state              TEXT NOT NULL DEFAULT 'active'
                       CHECK (state IN ('active', 'stable', 'dormant', 'archived', 'purged')),
    archived_at        INTEGER,

    -- Access tracking (maintained by the ingestion/search layer)
    last_accessed_at   INTEGER,
    access_count       INTEGER NOT NULL DEFAULT 0,
    reactivation_count INTEGER NOT NULL DEFAULT 0,

    created_at         INTEGER NOT NULL
);

CREATE INDEX idx_items_state    ON mem_items(state);
CREATE INDEX idx_items_category ON mem_items(category);
CREATE INDEX idx_items_decay    ON mem_items(decay_score DESC);
`,
	},
	{
		Version:     2,
		Description: "maintenance_meta: run watermarks",
		SQL: `
CREATE TABLE maintenance_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
