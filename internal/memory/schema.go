package memory

// Versioned document schema.
//
// v1 stored goals/notes/pinnedMemories flat on the profile. v2 wraps them
// into modeMemory.normal and adds an empty uncensored bucket. Migration is
// pure and total: any malformed or partial snapshot becomes a valid v2
// snapshot, never an error.

// SchemaVersion is the current snapshot schema version.
const SchemaVersion = 2

// EnsureBase guarantees the snapshot skeleton exists.
func EnsureBase(s *Snapshot) {
	if s.Users == nil {
		s.Users = map[string]*Document{}
	}
}

// Migrate upgrades a snapshot to the current schema. Returns true if
// anything changed.
func Migrate(s *Snapshot, lim Limits) bool {
	EnsureBase(s)
	changed := false

	version := s.Meta.SchemaVersion
	if version < 1 {
		version = 1
	}

	if version < 2 {
		for _, doc := range s.Users {
			migrateV1ToV2(doc, lim)
		}
		version = 2
		changed = true
	}

	if s.Meta.SchemaVersion != SchemaVersion {
		s.Meta.SchemaVersion = SchemaVersion
		changed = true
	}
	if s.Meta.UpdatedAt == "" {
		s.Meta.UpdatedAt = NowISO()
		changed = true
	}
	return changed
}

// migrateV1ToV2 wraps the flat v1 profile fields into modeMemory.normal,
// preserving existing metadata, and creates an empty uncensored bucket.
func migrateV1ToV2(d *Document, lim Limits) {
	if d == nil || d.Profile.ModeMemory != nil {
		return
	}

	normal := &Bucket{
		Goals:          cleanTail(d.Profile.Goals, lim.GoalsLimit),
		Notes:          cleanTail(d.Profile.Notes, lim.NotesLimit),
		PinnedMemories: cleanTail(d.Profile.PinnedMemories, lim.PinnedLimit),
		Meta: BucketMeta{
			Goals:  copyMeta(d.Profile.Meta.Goals),
			Pinned: copyMeta(d.Profile.Meta.Pinned),
		},
	}
	if len(normal.Goals) == 0 {
		normal.Goals = []string{SeedGoal}
	}
	if normal.Meta.Goals == nil {
		normal.Meta.Goals = map[string]MetaEntry{}
	}
	if normal.Meta.Pinned == nil {
		normal.Meta.Pinned = map[string]MetaEntry{}
	}

	d.Profile.ModeMemory = map[Mode]*Bucket{
		ModeNormal:     normal,
		ModeUncensored: defaultBucket(false),
	}
}

// EnsureLatest stamps the current schema version and update time. Applied
// on every save so the persisted version always matches the schema
// constant, whether or not a migration ran.
func EnsureLatest(s *Snapshot) {
	EnsureBase(s)
	s.Meta.SchemaVersion = SchemaVersion
	s.Meta.UpdatedAt = NowISO()
}
