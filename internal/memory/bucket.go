package memory

// Bucket invariants enforced here:
//   - every text in Goals/PinnedMemories has a Meta entry, and vice versa
//   - len(Goals) <= GoalsLimit, len(PinnedMemories) <= PinnedLimit,
//     len(Notes) <= NotesLimit, keeping the most recently appended entries
//   - dedup is exact normalized-string equality, nothing fuzzier
//
// Writes always target a single mode's bucket. Reads for prompt building
// merge normal+uncensored when the active mode is uncensored.

func defaultBucket(seedGoal bool) *Bucket {
	b := &Bucket{
		Goals:          []string{},
		Notes:          []string{},
		PinnedMemories: []string{},
		Meta: BucketMeta{
			Goals:  map[string]MetaEntry{},
			Pinned: map[string]MetaEntry{},
		},
	}
	if seedGoal {
		b.Goals = append(b.Goals, SeedGoal)
	}
	return b
}

// EnsureModeMemory guarantees both mode buckets exist with valid shapes.
// Malformed input self-heals: non-string entries are already gone by the
// time data reaches the typed model, empty strings are dropped here, lists
// are trimmed to their caps and meta maps are never nil.
func EnsureModeMemory(d *Document, lim Limits) {
	if d.Profile.ModeMemory == nil {
		d.Profile.ModeMemory = map[Mode]*Bucket{
			ModeNormal:     defaultBucket(true),
			ModeUncensored: defaultBucket(false),
		}
	}
	ensureSingleBucket(d, ModeNormal, true, lim)
	ensureSingleBucket(d, ModeUncensored, false, lim)
}

func ensureSingleBucket(d *Document, m Mode, seedGoal bool, lim Limits) {
	b := d.Profile.ModeMemory[m]
	if b == nil {
		d.Profile.ModeMemory[m] = defaultBucket(seedGoal)
		return
	}

	b.Goals = cleanTail(b.Goals, lim.GoalsLimit)
	b.Notes = cleanTail(b.Notes, lim.NotesLimit)
	b.PinnedMemories = cleanTail(b.PinnedMemories, lim.PinnedLimit)
	if b.Meta.Goals == nil {
		b.Meta.Goals = map[string]MetaEntry{}
	}
	if b.Meta.Pinned == nil {
		b.Meta.Pinned = map[string]MetaEntry{}
	}
}

// cleanTail trims entries, drops empties, and keeps the most recent max.
func cleanTail(values []string, max int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = NormalizeText(v, 0)
		if v != "" {
			out = append(out, v)
		}
	}
	return tail(out, max)
}

// tail keeps the last max entries.
func tail[T any](values []T, max int) []T {
	if max > 0 && len(values) > max {
		values = values[len(values)-max:]
	}
	if values == nil {
		values = []T{}
	}
	return values
}

// appendUnique appends text if absent and keeps the most recent max.
func appendUnique(values []string, text string, max int) []string {
	present := false
	for _, v := range values {
		if v == text {
			present = true
			break
		}
	}
	if !present {
		values = append(values, text)
	}
	return tail(values, max)
}

// AddGoal appends a goal with its quality score. No-op when the text is
// empty after normalization.
func (b *Bucket) AddGoal(text string, score float64, lim Limits, now string) bool {
	value := NormalizeText(text, lim.MaxLength)
	if value == "" {
		return false
	}
	b.Goals = appendUnique(b.Goals, value, lim.GoalsLimit)
	b.touchMeta(b.Meta.Goals, value, score, now)
	pruneMeta(b.Meta.Goals, b.Goals)
	return true
}

// AddPinned appends a pinned memory with its quality score, capped at
// maxPinned (callers pass the mode-config max, which may differ from the
// default).
func (b *Bucket) AddPinned(text string, score float64, maxPinned int, lim Limits, now string) bool {
	value := NormalizeText(text, lim.MaxLength)
	if value == "" {
		return false
	}
	b.PinnedMemories = appendUnique(b.PinnedMemories, value, maxPinned)
	b.touchMeta(b.Meta.Pinned, value, score, now)
	pruneMeta(b.Meta.Pinned, b.PinnedMemories)
	return true
}

// AddNote appends a note. Notes carry no metadata and never decay.
func (b *Bucket) AddNote(text string, lim Limits) bool {
	value := NormalizeText(text, 0)
	if value == "" {
		return false
	}
	b.Notes = appendUnique(b.Notes, value, lim.NotesLimit)
	return true
}

func (b *Bucket) touchMeta(meta map[string]MetaEntry, key string, score float64, now string) {
	if score <= 0 {
		score = 0.6
	}
	meta[key] = MetaEntry{Score: clamp01(score), UpdatedAt: now}
}

// pruneMeta drops metadata entries whose text is no longer in the list, so
// cap-truncation never leaves orphans.
func pruneMeta(meta map[string]MetaEntry, values []string) {
	keep := make(map[string]bool, len(values))
	for _, v := range values {
		keep[v] = true
	}
	for k := range meta {
		if !keep[k] {
			delete(meta, k)
		}
	}
}

// CompactMeta removes orphaned metadata from both tracked lists.
func (b *Bucket) CompactMeta() {
	pruneMeta(b.Meta.Goals, b.Goals)
	pruneMeta(b.Meta.Pinned, b.PinnedMemories)
}

// SyncMirror copies the active bucket into the legacy profile-level fields.
// Must run after every mutation that can change the active bucket or switch
// the mode; backward-compatible readers only see the mirror.
func SyncMirror(d *Document) {
	m := d.ActiveMode()
	b := d.Bucket(m)
	if b == nil {
		b = defaultBucket(m == ModeNormal)
	}

	d.Profile.Mode = m
	d.Profile.Goals = append([]string{}, b.Goals...)
	d.Profile.Notes = append([]string{}, b.Notes...)
	d.Profile.PinnedMemories = append([]string{}, b.PinnedMemories...)
	d.Profile.Meta = BucketMeta{
		Goals:  copyMeta(b.Meta.Goals),
		Pinned: copyMeta(b.Meta.Pinned),
	}
}

func copyMeta(meta map[string]MetaEntry) map[string]MetaEntry {
	out := make(map[string]MetaEntry, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// MergedBucket returns the read view for prompt construction and overview
// reporting. Normal mode sees only the normal bucket; uncensored mode sees
// the order-preserving union normal ∪ uncensored. The result is a copy —
// writes never go through it.
func MergedBucket(d *Document, lim Limits) Bucket {
	EnsureModeMemory(d, lim)
	normal := d.Bucket(ModeNormal)

	if d.ActiveMode() != ModeUncensored {
		return Bucket{
			Goals:          append([]string{}, normal.Goals...),
			Notes:          append([]string{}, normal.Notes...),
			PinnedMemories: append([]string{}, normal.PinnedMemories...),
			Meta: BucketMeta{
				Goals:  copyMeta(normal.Meta.Goals),
				Pinned: copyMeta(normal.Meta.Pinned),
			},
		}
	}

	un := d.Bucket(ModeUncensored)
	merged := Bucket{
		Goals:          unionStrings(normal.Goals, un.Goals),
		Notes:          unionStrings(normal.Notes, un.Notes),
		PinnedMemories: unionStrings(normal.PinnedMemories, un.PinnedMemories),
		Meta: BucketMeta{
			Goals:  copyMeta(normal.Meta.Goals),
			Pinned: copyMeta(normal.Meta.Pinned),
		},
	}
	for k, v := range un.Meta.Goals {
		merged.Meta.Goals[k] = v
	}
	for k, v := range un.Meta.Pinned {
		merged.Meta.Pinned[k] = v
	}
	return merged
}

// unionStrings is the order-preserving, de-duplicated union of a then b.
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// RecentHistory returns the last window turns visible to the active mode.
// Uncensored mode reads both lists concatenated; normal mode reads only
// its own.
func RecentHistory(d *Document, window int) []Turn {
	var turns []Turn
	if d.ActiveMode() == ModeUncensored {
		turns = append(append([]Turn{}, d.History...), d.UncensoredHistory...)
	} else {
		turns = append([]Turn{}, d.History...)
	}
	return tail(turns, window)
}

// Normalize repairs a document in place: profile defaults, valid buckets,
// filtered history, capped summaries, legacy-field adoption, and a fresh
// mirror. It is the only path from untrusted persisted state to a document
// the engine will mutate, and it never fails.
func Normalize(d *Document, lim Limits) {
	d.Profile.Mode = NormalizeMode(string(d.Profile.Mode))
	if d.Profile.Style == "" {
		d.Profile.Style = DefaultStyle
	}

	d.History = filterTurns(d.History)
	d.UncensoredHistory = filterTurns(d.UncensoredHistory)
	d.Summaries = tail(d.Summaries, lim.SummaryLimit)
	d.UncensoredSummaries = tail(d.UncensoredSummaries, lim.SummaryLimit)

	hadModeMemory := d.Profile.ModeMemory != nil
	EnsureModeMemory(d, lim)

	// A v1-shaped document carries its memories only in the legacy
	// fields. Adopt them into the normal bucket once, when the bucket
	// has nothing of its own.
	if !hadModeMemory || bucketEmpty(d.Bucket(ModeNormal)) {
		adoptLegacyFields(d, lim)
	}

	d.Profile.ModeExtras.UncensoredInstructions = cleanTail(d.Profile.ModeExtras.UncensoredInstructions, 20)
	d.Profile.ModeExtras.UncensoredMemories = cleanTail(d.Profile.ModeExtras.UncensoredMemories, 40)

	SyncMirror(d)
}

func bucketEmpty(b *Bucket) bool {
	return len(b.Goals) == 0 && len(b.Notes) == 0 && len(b.PinnedMemories) == 0
}

func adoptLegacyFields(d *Document, lim Limits) {
	normal := d.Bucket(ModeNormal)
	// A fresh bucket carries only the untracked seed goal; legacy goals
	// replace it rather than being dropped.
	seedOnly := len(normal.Goals) == 1 && normal.Goals[0] == SeedGoal && len(normal.Meta.Goals) == 0
	if legacy := cleanTail(d.Profile.Goals, lim.GoalsLimit); len(legacy) > 0 && (len(normal.Goals) == 0 || seedOnly) {
		normal.Goals = legacy
	}
	if legacy := cleanTail(d.Profile.Notes, lim.NotesLimit); len(legacy) > 0 && len(normal.Notes) == 0 {
		normal.Notes = legacy
	}
	if legacy := cleanTail(d.Profile.PinnedMemories, lim.PinnedLimit); len(legacy) > 0 && len(normal.PinnedMemories) == 0 {
		normal.PinnedMemories = legacy
	}
	if len(d.Profile.Meta.Goals) > 0 && len(normal.Meta.Goals) == 0 {
		normal.Meta.Goals = copyMeta(d.Profile.Meta.Goals)
	}
	if len(d.Profile.Meta.Pinned) > 0 && len(normal.Meta.Pinned) == 0 {
		normal.Meta.Pinned = copyMeta(d.Profile.Meta.Pinned)
	}
}

// filterTurns drops turns with no text on either side.
func filterTurns(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.User != "" || t.Assistant != "" {
			out = append(out, t)
		}
	}
	return out
}
