package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lazypower/recall/internal/memory"
)

// Full-snapshot persistence. Every save is one transaction that clears the
// five relational tables and re-inserts the whole keyspace. Intentionally
// non-incremental: a reader can never observe a half-written document.

// legacyBlobKey is the key the pre-relational blob store kept its single
// JSON document under.
const legacyBlobKey = "assistant-memory"

// Save persists the snapshot, stamping the current schema version first.
// It either commits fully or leaves the prior state untouched.
func (db *DB) Save(s *memory.Snapshot) error {
	memory.EnsureLatest(s)
	now := memory.NowISO()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"history", "summaries", "memories", "profiles", "users"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	userIDs := make([]string, 0, len(s.Users))
	for id := range s.Users {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	for _, userID := range userIDs {
		if err := insertUser(tx, userID, s.Users[userID], now); err != nil {
			return err
		}
	}

	metaJSON, err := json.Marshal(s.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO meta (key, value, updated_at) VALUES ('memory_meta', ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, string(metaJSON), now); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func insertUser(tx *sql.Tx, userID string, doc *memory.Document, now string) error {
	if _, err := tx.Exec(
		"INSERT INTO users (user_id, created_at, updated_at) VALUES (?, ?, ?)",
		userID, now, now,
	); err != nil {
		return fmt.Errorf("insert user %s: %w", userID, err)
	}

	extrasJSON, err := json.Marshal(doc.Profile.ModeExtras)
	if err != nil {
		return fmt.Errorf("marshal extras for %s: %w", userID, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO profiles (user_id, mode, preferred_name, style, mode_extras_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, userID, string(doc.ActiveMode()), doc.Profile.PreferredName, doc.Profile.Style, string(extrasJSON), now); err != nil {
		return fmt.Errorf("insert profile %s: %w", userID, err)
	}

	for _, mode := range memory.Modes {
		b := doc.Bucket(mode)
		if b == nil {
			continue
		}
		if err := insertMemories(tx, userID, mode, "goal", b.Goals, b.Meta.Goals, now); err != nil {
			return err
		}
		if err := insertMemories(tx, userID, mode, "note", b.Notes, nil, now); err != nil {
			return err
		}
		if err := insertMemories(tx, userID, mode, "pinned", b.PinnedMemories, b.Meta.Pinned, now); err != nil {
			return err
		}

		for _, t := range *doc.HistoryFor(mode) {
			at := t.At
			if at == "" {
				at = now
			}
			if _, err := tx.Exec(`
				INSERT INTO history (user_id, mode, user_text, assistant_text, event_at)
				VALUES (?, ?, ?, ?, ?)
			`, userID, string(mode), t.User, t.Assistant, at); err != nil {
				return fmt.Errorf("insert history for %s: %w", userID, err)
			}
		}

		for _, sum := range *doc.SummariesFor(mode) {
			tags := sum.Tags
			if tags == nil {
				tags = []string{}
			}
			tagsJSON, err := json.Marshal(tags)
			if err != nil {
				return fmt.Errorf("marshal tags for %s: %w", userID, err)
			}
			at := sum.At
			if at == "" {
				at = now
			}
			if _, err := tx.Exec(`
				INSERT INTO summaries (user_id, mode, reason, tags_json, summary_text, turn_count, event_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, userID, string(mode), sum.Reason, string(tagsJSON), sum.Summary, sum.Count, at); err != nil {
				return fmt.Errorf("insert summary for %s: %w", userID, err)
			}
		}
	}
	return nil
}

func insertMemories(tx *sql.Tx, userID string, mode memory.Mode, memType string, values []string, meta map[string]memory.MetaEntry, now string) error {
	for _, value := range values {
		if value == "" {
			continue
		}
		score := 0.0
		updatedAt := now
		if meta != nil {
			entry, ok := meta[value]
			score = entry.Score
			if score == 0 {
				score = 0.6
			}
			if ok && entry.UpdatedAt != "" {
				updatedAt = entry.UpdatedAt
			}
		}
		if _, err := tx.Exec(`
			INSERT INTO memories (user_id, mode, memory_type, text_value, score, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, mode, memory_type, text_value) DO UPDATE SET
				score = excluded.score, updated_at = excluded.updated_at
		`, userID, string(mode), memType, value, score, updatedAt); err != nil {
			return fmt.Errorf("insert %s memory for %s: %w", memType, userID, err)
		}
	}
	return nil
}

// Load hydrates the whole keyspace back into a typed snapshot. An empty
// database yields an empty snapshot at the current schema version.
func (db *DB) Load(lim memory.Limits) (*memory.Snapshot, error) {
	s := &memory.Snapshot{
		Users: map[string]*memory.Document{},
		Meta:  memory.Meta{SchemaVersion: memory.SchemaVersion},
	}

	var metaJSON string
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'memory_meta'").Scan(&metaJSON)
	if err == nil {
		json.Unmarshal([]byte(metaJSON), &s.Meta)
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("load meta: %w", err)
	}

	rows, err := db.Query("SELECT user_id FROM users ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, userID := range userIDs {
		doc, err := db.loadDocument(userID, lim)
		if err != nil {
			return nil, err
		}
		s.Users[userID] = doc
	}

	memory.Migrate(s, lim)
	return s, nil
}

func (db *DB) loadDocument(userID string, lim memory.Limits) (*memory.Document, error) {
	doc := memory.DefaultDocument(lim)

	var mode, preferredName, style, extrasJSON string
	err := db.QueryRow(
		"SELECT mode, preferred_name, style, mode_extras_json FROM profiles WHERE user_id = ?",
		userID,
	).Scan(&mode, &preferredName, &style, &extrasJSON)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	if err == nil {
		doc.Profile.Mode = memory.NormalizeMode(mode)
		doc.Profile.PreferredName = preferredName
		if style != "" {
			doc.Profile.Style = style
		}
		json.Unmarshal([]byte(extrasJSON), &doc.Profile.ModeExtras)
	}

	// The seed goal belongs to genuinely new users only; hydrated
	// buckets start from their rows.
	for _, m := range memory.Modes {
		b := doc.Bucket(m)
		b.Goals = []string{}
		b.Meta.Goals = map[string]memory.MetaEntry{}
	}

	if err := db.loadMemories(userID, doc); err != nil {
		return nil, err
	}
	if err := db.loadHistory(userID, doc); err != nil {
		return nil, err
	}
	if err := db.loadSummaries(userID, doc); err != nil {
		return nil, err
	}

	memory.Normalize(doc, lim)
	return doc, nil
}

func (db *DB) loadMemories(userID string, doc *memory.Document) error {
	rows, err := db.Query(`
		SELECT mode, memory_type, text_value, score, updated_at
		FROM memories WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return fmt.Errorf("load memories %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var mode, memType, text, updatedAt string
		var score float64
		if err := rows.Scan(&mode, &memType, &text, &score, &updatedAt); err != nil {
			return fmt.Errorf("scan memory: %w", err)
		}
		if text == "" {
			continue
		}
		if score == 0 {
			score = 0.6
		}
		b := doc.Bucket(memory.NormalizeMode(mode))
		switch memType {
		case "goal":
			b.Goals = append(b.Goals, text)
			b.Meta.Goals[text] = memory.MetaEntry{Score: score, UpdatedAt: updatedAt}
		case "pinned":
			b.PinnedMemories = append(b.PinnedMemories, text)
			b.Meta.Pinned[text] = memory.MetaEntry{Score: score, UpdatedAt: updatedAt}
		case "note":
			b.Notes = append(b.Notes, text)
		}
	}
	return rows.Err()
}

func (db *DB) loadHistory(userID string, doc *memory.Document) error {
	rows, err := db.Query(`
		SELECT mode, user_text, assistant_text, event_at
		FROM history WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return fmt.Errorf("load history %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var mode, userText, assistantText, at string
		if err := rows.Scan(&mode, &userText, &assistantText, &at); err != nil {
			return fmt.Errorf("scan history: %w", err)
		}
		turn := memory.Turn{At: at, User: userText, Assistant: assistantText}
		list := doc.HistoryFor(memory.NormalizeMode(mode))
		*list = append(*list, turn)
	}
	return rows.Err()
}

func (db *DB) loadSummaries(userID string, doc *memory.Document) error {
	rows, err := db.Query(`
		SELECT mode, reason, tags_json, summary_text, turn_count, event_at
		FROM summaries WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return fmt.Errorf("load summaries %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var mode, reason, tagsJSON, summaryText, at string
		var count int
		if err := rows.Scan(&mode, &reason, &tagsJSON, &summaryText, &count, &at); err != nil {
			return fmt.Errorf("scan summary: %w", err)
		}
		tags := []string{}
		json.Unmarshal([]byte(tagsJSON), &tags)
		sum := memory.Summary{At: at, Reason: reason, Count: count, Tags: tags, Summary: summaryText}
		list := doc.SummariesFor(memory.NormalizeMode(mode))
		*list = append(*list, sum)
	}
	return rows.Err()
}

// importLegacyBlob migrates a pre-relational single-blob store into the
// relational tables once, then drops it. Runs on every open; a database
// without the legacy table is untouched.
func (db *DB) importLegacyBlob() error {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'app_state'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check legacy table: %w", err)
	}

	var blob string
	err = db.QueryRow("SELECT value FROM app_state WHERE key = ?", legacyBlobKey).Scan(&blob)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read legacy blob: %w", err)
	}
	if err == nil && blob != "" {
		lim := memory.DefaultLimits()
		snapshot := memory.SnapshotFromJSON([]byte(blob), lim)
		if len(snapshot.Users) > 0 {
			if err := db.Save(snapshot); err != nil {
				return fmt.Errorf("persist legacy blob: %w", err)
			}
		}
	}

	if _, err := db.Exec("DROP TABLE IF EXISTS app_state"); err != nil {
		return fmt.Errorf("drop legacy table: %w", err)
	}
	return nil
}
