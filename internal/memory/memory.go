// Package memory implements the per-user conversational memory model:
// mode-scoped buckets of goals, notes and pinned memories with quality
// metadata, bounded conversation history with lossy summaries, time-based
// decay and forgetting, and the schema migration path for older documents.
//
// Everything in this package is pure in-memory mutation. Persistence lives
// in internal/store, orchestration in internal/engine.
package memory

import (
	"regexp"
	"strings"
	"time"
)

// Mode is one of the two isolated behavioral contexts.
type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeUncensored Mode = "uncensored"
)

// Modes lists both contexts in canonical order.
var Modes = []Mode{ModeNormal, ModeUncensored}

// NormalizeMode coerces arbitrary input to a valid Mode. Anything that is
// not "uncensored" is normal.
func NormalizeMode(s string) Mode {
	if strings.ToLower(strings.TrimSpace(s)) == string(ModeUncensored) {
		return ModeUncensored
	}
	return ModeNormal
}

// MetaEntry records the quality score and write time of a goal or pinned
// memory. The score is the decay base; UpdatedAt is an ISO-8601 string.
type MetaEntry struct {
	Score     float64 `json:"score"`
	UpdatedAt string  `json:"updatedAt"`
}

// BucketMeta maps memory text to its metadata, per tracked list. Notes
// carry no metadata and never decay.
type BucketMeta struct {
	Goals  map[string]MetaEntry `json:"goals"`
	Pinned map[string]MetaEntry `json:"pinnedMemories"`
}

// Bucket is the per-mode container of learned memories.
type Bucket struct {
	Goals          []string   `json:"goals"`
	Notes          []string   `json:"notes"`
	PinnedMemories []string   `json:"pinnedMemories"`
	Meta           BucketMeta `json:"memoryMeta"`
}

// ModeExtras carries the uncensored-mode extras that round-trip through the
// profile row as an opaque JSON column.
type ModeExtras struct {
	UncensoredInstructions []string `json:"uncensoredInstructions"`
	UncensoredMemories     []string `json:"uncensoredMemories"`
}

// Profile is the per-user profile. Goals, Notes, PinnedMemories and Meta at
// this level are the legacy mirror of the active bucket: derived, never the
// source of truth, resynced after every mutation via SyncMirror.
type Profile struct {
	Mode           Mode             `json:"mode"`
	PreferredName  string           `json:"preferredName"`
	Style          string           `json:"style"`
	Goals          []string         `json:"goals"`
	Notes          []string         `json:"notes"`
	PinnedMemories []string         `json:"pinnedMemories"`
	Meta           BucketMeta       `json:"memoryMeta"`
	ModeMemory     map[Mode]*Bucket `json:"modeMemory"`
	ModeExtras     ModeExtras       `json:"modeExtras"`
}

// Turn is one exchange. At is an ISO-8601 string; an unparseable At means
// the turn is exempt from time-based expiry and date-scoped deletion.
type Turn struct {
	At        string `json:"at"`
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Summary reasons.
const (
	ReasonRetention  = "retention-cleanup"
	ReasonCompaction = "history-compaction"
)

// Summary is the irreversible, lossy aggregate of a batch of turns.
type Summary struct {
	At      string   `json:"at"`
	Reason  string   `json:"reason"`
	Count   int      `json:"count"`
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

// Document is the full memory state for one user.
type Document struct {
	Profile             Profile   `json:"profile"`
	History             []Turn    `json:"history"`
	Summaries           []Summary `json:"summaries"`
	UncensoredHistory   []Turn    `json:"uncensoredHistory"`
	UncensoredSummaries []Summary `json:"uncensoredSummaries"`
}

// Meta is snapshot-level bookkeeping.
type Meta struct {
	SchemaVersion int    `json:"schemaVersion"`
	UpdatedAt     string `json:"updatedAt"`
}

// Snapshot is the whole persisted keyspace: every user document plus meta.
type Snapshot struct {
	Users map[string]*Document `json:"users"`
	Meta  Meta                 `json:"_meta"`
}

// Limits bundles every tunable of the memory lifecycle engine.
type Limits struct {
	GoalsLimit        int
	NotesLimit        int
	PinnedLimit       int
	HistoryStoreLimit int
	RetentionDays     int
	SummaryChunkSize  int
	SummaryLimit      int
	QualityThreshold  float64
	MinLength         int
	MaxLength         int
	DecayDays         int
	ForgetThreshold   float64
	TurnMaxChars      int
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		GoalsLimit:        8,
		NotesLimit:        10,
		PinnedLimit:       40,
		HistoryStoreLimit: 40,
		RetentionDays:     45,
		SummaryChunkSize:  20,
		SummaryLimit:      24,
		QualityThreshold:  0.55,
		MinLength:         10,
		MaxLength:         180,
		DecayDays:         30,
		ForgetThreshold:   0.35,
		TurnMaxChars:      1200,
	}
}

// SeedGoal is the one goal a freshly created normal bucket starts with.
const SeedGoal = "daily structure and focus"

// DefaultStyle is the style a fresh profile starts with.
const DefaultStyle = "playful-supportive"

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// NowISO returns the current UTC time as an ISO-8601 string.
func NowISO() string {
	return time.Now().UTC().Format(isoLayout)
}

// FormatISO renders t as an ISO-8601 string.
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ParseISO parses an ISO-8601 timestamp leniently. ok is false for
// malformed or empty input.
func ParseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeText collapses whitespace, trims, and truncates to max runes.
// Normalized text is the identity of a goal or pinned memory: two inputs
// that normalize equally are one entry.
func NormalizeText(s string, max int) string {
	s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
	return Truncate(s, max)
}

// Truncate limits s to max runes without splitting a codepoint.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// DefaultDocument builds the seed state for a newly seen user: one seed
// goal in the normal bucket, empty uncensored bucket.
func DefaultDocument(lim Limits) *Document {
	doc := &Document{
		Profile: Profile{
			Mode:  ModeNormal,
			Style: DefaultStyle,
			ModeMemory: map[Mode]*Bucket{
				ModeNormal:     defaultBucket(true),
				ModeUncensored: defaultBucket(false),
			},
			ModeExtras: ModeExtras{
				UncensoredInstructions: []string{},
				UncensoredMemories:     []string{},
			},
		},
		History:             []Turn{},
		Summaries:           []Summary{},
		UncensoredHistory:   []Turn{},
		UncensoredSummaries: []Summary{},
	}
	SyncMirror(doc)
	return doc
}

// DefaultSnapshot builds an empty keyspace at the current schema version.
func DefaultSnapshot() *Snapshot {
	return &Snapshot{
		Users: map[string]*Document{},
		Meta:  Meta{SchemaVersion: SchemaVersion, UpdatedAt: NowISO()},
	}
}

// Bucket returns the bucket for a mode, nil if the map is missing it.
// Callers that need the self-healing guarantee go through EnsureModeMemory.
func (d *Document) Bucket(m Mode) *Bucket {
	if d.Profile.ModeMemory == nil {
		return nil
	}
	return d.Profile.ModeMemory[m]
}

// ActiveMode returns the profile's normalized active mode.
func (d *Document) ActiveMode() Mode {
	return NormalizeMode(string(d.Profile.Mode))
}

// HistoryFor returns a pointer to the turn list for a mode.
func (d *Document) HistoryFor(m Mode) *[]Turn {
	if m == ModeUncensored {
		return &d.UncensoredHistory
	}
	return &d.History
}

// SummariesFor returns a pointer to the summary list for a mode.
func (d *Document) SummariesFor(m Mode) *[]Summary {
	if m == ModeUncensored {
		return &d.UncensoredSummaries
	}
	return &d.Summaries
}
