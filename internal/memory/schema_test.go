package memory

import (
	"testing"
)

func TestMigrateV1WrapsLegacyFields(t *testing.T) {
	lim := DefaultLimits()
	s := &Snapshot{
		Users: map[string]*Document{
			"u1": {
				Profile: Profile{
					Goals:          []string{"x"},
					Notes:          []string{"a note"},
					PinnedMemories: []string{"a pin"},
					Meta: BucketMeta{
						Goals: map[string]MetaEntry{"x": {Score: 0.7, UpdatedAt: NowISO()}},
					},
				},
			},
		},
		Meta: Meta{SchemaVersion: 1},
	}

	if !Migrate(s, lim) {
		t.Fatal("migration reported no change")
	}
	if s.Meta.SchemaVersion != SchemaVersion {
		t.Errorf("version = %d, want %d", s.Meta.SchemaVersion, SchemaVersion)
	}

	doc := s.Users["u1"]
	normal := doc.Bucket(ModeNormal)
	if normal == nil {
		t.Fatal("normal bucket missing")
	}
	if len(normal.Goals) != 1 || normal.Goals[0] != "x" {
		t.Errorf("goals = %v, want [x]", normal.Goals)
	}
	if len(normal.Notes) != 1 || normal.Notes[0] != "a note" {
		t.Errorf("notes = %v", normal.Notes)
	}
	if len(normal.PinnedMemories) != 1 || normal.PinnedMemories[0] != "a pin" {
		t.Errorf("pinned = %v", normal.PinnedMemories)
	}
	if entry, ok := normal.Meta.Goals["x"]; !ok || entry.Score != 0.7 {
		t.Errorf("goal metadata not preserved: %+v", normal.Meta.Goals)
	}

	un := doc.Bucket(ModeUncensored)
	if un == nil {
		t.Fatal("uncensored bucket missing")
	}
	if len(un.Goals) != 0 || len(un.Notes) != 0 || len(un.PinnedMemories) != 0 {
		t.Errorf("uncensored bucket not empty: %+v", un)
	}
}

func TestMigrateV1SeedsEmptyGoals(t *testing.T) {
	lim := DefaultLimits()
	s := &Snapshot{
		Users: map[string]*Document{"u1": {}},
		Meta:  Meta{SchemaVersion: 1},
	}

	Migrate(s, lim)

	normal := s.Users["u1"].Bucket(ModeNormal)
	if len(normal.Goals) != 1 || normal.Goals[0] != SeedGoal {
		t.Errorf("goals = %v, want seed goal", normal.Goals)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	lim := DefaultLimits()
	s := DefaultSnapshot()
	s.Users["u1"] = DefaultDocument(lim)

	if Migrate(s, lim) {
		t.Error("current-version snapshot reported a change")
	}
}

func TestMigrateDoesNotTouchV2Documents(t *testing.T) {
	lim := DefaultLimits()
	doc := DefaultDocument(lim)
	doc.Bucket(ModeNormal).AddGoal("an existing v2 goal", 0.8, lim, NowISO())
	s := &Snapshot{
		Users: map[string]*Document{"u1": doc},
		Meta:  Meta{SchemaVersion: 1}, // stale version stamp, v2-shaped doc
	}

	Migrate(s, lim)

	normal := s.Users["u1"].Bucket(ModeNormal)
	if len(normal.Goals) != 2 {
		t.Errorf("goals rewritten: %v", normal.Goals)
	}
}

func TestEnsureLatestStamps(t *testing.T) {
	s := &Snapshot{}
	EnsureLatest(s)
	if s.Meta.SchemaVersion != SchemaVersion {
		t.Errorf("version = %d", s.Meta.SchemaVersion)
	}
	if s.Meta.UpdatedAt == "" {
		t.Error("UpdatedAt not stamped")
	}
	if s.Users == nil {
		t.Error("users map not initialized")
	}
}

func TestSnapshotFromJSONInvalid(t *testing.T) {
	lim := DefaultLimits()
	s := SnapshotFromJSON([]byte("{not json"), lim)
	if s == nil || s.Users == nil {
		t.Fatal("invalid JSON must yield an empty snapshot")
	}
	if s.Meta.SchemaVersion != SchemaVersion {
		t.Errorf("version = %d", s.Meta.SchemaVersion)
	}
}

func TestSnapshotFromJSONMigratesV1(t *testing.T) {
	lim := DefaultLimits()
	raw := []byte(`{
		"_meta": {"schemaVersion": 1},
		"users": {
			"u1": {
				"profile": {
					"mode": "normal",
					"goals": ["x"],
					"notes": ["legacy note"]
				},
				"history": [{"at": "2025-01-01T10:00:00.000Z", "user": "hi there friend", "assistant": "hello"}]
			}
		}
	}`)

	s := SnapshotFromJSON(raw, lim)

	doc, ok := s.Users["u1"]
	if !ok {
		t.Fatal("user missing")
	}
	normal := doc.Bucket(ModeNormal)
	if len(normal.Goals) != 1 || normal.Goals[0] != "x" {
		t.Errorf("goals = %v, want [x]", normal.Goals)
	}
	if len(doc.History) != 1 || doc.History[0].User != "hi there friend" {
		t.Errorf("history = %v", doc.History)
	}
	if s.Meta.SchemaVersion != SchemaVersion {
		t.Errorf("version = %d", s.Meta.SchemaVersion)
	}
	// Mirror resynced from the migrated bucket.
	if len(doc.Profile.Goals) != 1 || doc.Profile.Goals[0] != "x" {
		t.Errorf("mirror goals = %v", doc.Profile.Goals)
	}
}

func TestSnapshotFromJSONAdoptsFlatProfileAtCurrentVersion(t *testing.T) {
	lim := DefaultLimits()
	// Stamped current but shaped flat: no migration runs, so the repair
	// path must adopt the legacy fields instead of seeding over them.
	raw := []byte(`{
		"_meta": {"schemaVersion": 2},
		"users": {
			"u1": {
				"profile": {
					"mode": "normal",
					"goals": ["a flat-profile goal"],
					"notes": ["a flat-profile note"]
				}
			}
		}
	}`)

	s := SnapshotFromJSON(raw, lim)

	normal := s.Users["u1"].Bucket(ModeNormal)
	if len(normal.Goals) != 1 || normal.Goals[0] != "a flat-profile goal" {
		t.Errorf("goals = %v, want the flat-profile goal, not the seed", normal.Goals)
	}
	if len(normal.Notes) != 1 || normal.Notes[0] != "a flat-profile note" {
		t.Errorf("notes = %v", normal.Notes)
	}
}

func TestSnapshotFromJSONTolerantOfWrongTypes(t *testing.T) {
	lim := DefaultLimits()
	raw := []byte(`{
		"users": {
			"u1": {
				"profile": {
					"mode": 42,
					"goals": "not-an-array",
					"notes": [17, "a real note", null]
				},
				"history": "nope"
			}
		}
	}`)

	s := SnapshotFromJSON(raw, lim)
	doc := s.Users["u1"]
	if doc.Profile.Mode != ModeNormal {
		t.Errorf("mode = %q", doc.Profile.Mode)
	}
	normal := doc.Bucket(ModeNormal)
	if len(normal.Notes) != 1 || normal.Notes[0] != "a real note" {
		t.Errorf("notes = %v, want the one coercible entry", normal.Notes)
	}
	if len(doc.History) != 0 {
		t.Errorf("history = %v", doc.History)
	}
}

func TestParseISOLenient(t *testing.T) {
	for _, s := range []string{
		"2025-06-01T10:30:00.000Z",
		"2025-06-01T10:30:00Z",
		"2025-06-01T10:30:00",
		"2025-06-01",
	} {
		if _, ok := ParseISO(s); !ok {
			t.Errorf("ParseISO(%q) failed", s)
		}
	}
	for _, s := range []string{"", "yesterday", "01.06.2025"} {
		if _, ok := ParseISO(s); ok {
			t.Errorf("ParseISO(%q) unexpectedly succeeded", s)
		}
	}
}
