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
		Description: "users + profiles",
		SQL: `
CREATE TABLE users (
    user_id    TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE profiles (
    user_id          TEXT PRIMARY KEY,
    mode             TEXT NOT NULL,
    preferred_name   TEXT NOT NULL,
    style            TEXT NOT NULL,
    mode_extras_json TEXT NOT NULL,
    updated_at       TEXT NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     2,
		Description: "memories: goals, notes and pinned memories per mode",
		SQL: `
CREATE TABLE memories (
    id          INTEGER PRIMARY KEY,
    user_id     TEXT NOT NULL,
    mode        TEXT NOT NULL CHECK (mode IN ('normal', 'uncensored')),
    memory_type TEXT NOT NULL CHECK (memory_type IN ('goal', 'note', 'pinned')),
    text_value  TEXT NOT NULL,
    score       REAL NOT NULL DEFAULT 0,
    updated_at  TEXT NOT NULL,
    UNIQUE (user_id, mode, memory_type, text_value),
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);

CREATE INDEX idx_memories_user_mode_type ON memories(user_id, mode, memory_type);
`,
	},
	{
		Version:     3,
		Description: "history + summaries per mode",
		SQL: `
CREATE TABLE history (
    id             INTEGER PRIMARY KEY,
    user_id        TEXT NOT NULL,
    mode           TEXT NOT NULL CHECK (mode IN ('normal', 'uncensored')),
    user_text      TEXT NOT NULL,
    assistant_text TEXT NOT NULL,
    event_at       TEXT NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);

CREATE INDEX idx_history_user_mode_time ON history(user_id, mode, event_at);

CREATE TABLE summaries (
    id           INTEGER PRIMARY KEY,
    user_id      TEXT NOT NULL,
    mode         TEXT NOT NULL CHECK (mode IN ('normal', 'uncensored')),
    reason       TEXT NOT NULL,
    tags_json    TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    turn_count   INTEGER NOT NULL,
    event_at     TEXT NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);

CREATE INDEX idx_summaries_user_mode_time ON summaries(user_id, mode, event_at);
`,
	},
	{
		Version:     4,
		Description: "meta: snapshot schema version bookkeeping",
		SQL: `
CREATE TABLE meta (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
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

// SchemaVersion returns the current DDL schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
