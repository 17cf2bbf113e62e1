package memory

import "time"

// Decay and forgetting.
//
// Linear decay over DecayDays: decayFactor = max(0, 1 - ageDays/decayDays),
// decayedScore = baseScore * decayFactor. Entries below ForgetThreshold are
// dropped from the list and its metadata together. Survivors keep their
// original UpdatedAt — decay never resets the clock. Runs once per document
// load, before any mutation; there is no background sweep.

// DecayedScore computes the current confidence of a metadata entry. A nil
// or zero-score entry falls back to a fresh quality score of the text; an
// unparseable UpdatedAt means no decay is applied.
func DecayedScore(entry *MetaEntry, fallbackText string, lim Limits, now time.Time) float64 {
	var base float64
	var updatedAt string
	if entry != nil {
		base = clamp01(entry.Score)
		updatedAt = entry.UpdatedAt
	}
	if base == 0 {
		base = Score(fallbackText, lim)
	}

	written, ok := ParseISO(updatedAt)
	if !ok {
		return base
	}

	// Stored timestamps carry millisecond precision; truncate now to the
	// same grain so an entry written at this instant has age exactly zero.
	ageDays := now.Truncate(time.Millisecond).Sub(written).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decayDays := lim.DecayDays
	if decayDays < 1 {
		decayDays = 1
	}
	factor := 1 - ageDays/float64(decayDays)
	if factor < 0 {
		factor = 0
	}
	return base * factor
}

// ApplyDecayAndForget recomputes decayed scores for every metadata-tracked
// list in every mode bucket and drops entries below ForgetThreshold.
// Surviving metadata is rewritten with max(decayedScore, freshScore) but
// the original UpdatedAt. Notes are only re-capped; they do not decay.
func ApplyDecayAndForget(d *Document, lim Limits, now time.Time) {
	EnsureModeMemory(d, lim)

	for _, m := range Modes {
		b := d.Bucket(m)
		b.Goals = tail(decayList(b.Goals, b.Meta.Goals, lim, now), lim.GoalsLimit)
		b.PinnedMemories = tail(decayList(b.PinnedMemories, b.Meta.Pinned, lim, now), lim.PinnedLimit)
		b.Notes = tail(b.Notes, lim.NotesLimit)
		b.CompactMeta()
	}

	SyncMirror(d)
}

// decayList filters one tracked list in place against its metadata map and
// rewrites the map to exactly the survivors.
func decayList(values []string, meta map[string]MetaEntry, lim Limits, now time.Time) []string {
	kept := make([]string, 0, len(values))
	next := make(map[string]MetaEntry, len(values))

	for _, raw := range values {
		value := NormalizeText(raw, lim.MaxLength)
		if value == "" {
			continue
		}

		var entry *MetaEntry
		if e, ok := meta[value]; ok {
			entry = &e
		}
		decayed := DecayedScore(entry, value, lim, now)
		if decayed < lim.ForgetThreshold {
			continue
		}

		updatedAt := FormatISO(now)
		if entry != nil && entry.UpdatedAt != "" {
			updatedAt = entry.UpdatedAt
		}
		score := decayed
		if fresh := Score(value, lim); fresh > score {
			score = fresh
		}
		kept = append(kept, value)
		next[value] = MetaEntry{Score: score, UpdatedAt: updatedAt}
	}

	for k := range meta {
		delete(meta, k)
	}
	for k, v := range next {
		meta[k] = v
	}
	return kept
}
