package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lazypower/recall/internal/memory"
)

// Administrative bulk deletion. Every operation loads the document,
// mutates all affected sub-stores for the requested mode scope in memory,
// resyncs the mirror, persists atomically, and returns a counts-only
// overview — never raw content. Re-running an operation with the same
// filter is a no-op.

// ModeCounts are the per-bucket list sizes.
type ModeCounts struct {
	Goals          int `json:"goals"`
	Notes          int `json:"notes"`
	PinnedMemories int `json:"pinnedMemories"`
}

// Overview is the counts-only projection of a user's memory, safe to
// expose over an API boundary.
type Overview struct {
	Mode          string                `json:"mode"`
	Style         string                `json:"style"`
	PreferredName string                `json:"preferredName"`
	History       map[string]int        `json:"history"`
	Summaries     map[string]int        `json:"summaries"`
	Memories      map[string]ModeCounts `json:"memories"`
}

func overviewOf(doc *memory.Document) *Overview {
	o := &Overview{
		Mode:          string(doc.ActiveMode()),
		Style:         doc.Profile.Style,
		PreferredName: doc.Profile.PreferredName,
		History:       map[string]int{},
		Summaries:     map[string]int{},
		Memories:      map[string]ModeCounts{},
	}
	for _, m := range memory.Modes {
		o.History[string(m)] = len(*doc.HistoryFor(m))
		o.Summaries[string(m)] = len(*doc.SummariesFor(m))
		b := doc.Bucket(m)
		if b == nil {
			b = &memory.Bucket{}
		}
		o.Memories[string(m)] = ModeCounts{
			Goals:          len(b.Goals),
			Notes:          len(b.Notes),
			PinnedMemories: len(b.PinnedMemories),
		}
	}
	return o
}

// GetMemoryOverview returns the counts-only projection for a user.
func (m *Manager) GetMemoryOverview(userID string) (*Overview, error) {
	state, err := m.GetUserState(userID)
	if err != nil {
		return nil, err
	}
	return overviewOf(state.User), nil
}

// modesFor resolves a mode scope string: "all" targets both modes,
// anything else one normalized mode.
func modesFor(scope string) []memory.Mode {
	if strings.ToLower(strings.TrimSpace(scope)) == "all" || strings.TrimSpace(scope) == "" {
		return memory.Modes
	}
	return []memory.Mode{memory.NormalizeMode(scope)}
}

func scopeHas(scope string, m memory.Mode) bool {
	for _, mode := range modesFor(scope) {
		if mode == m {
			return true
		}
	}
	return false
}

// PruneHistoryByDays removes turns and summaries older than days from the
// scoped modes. Unparseable timestamps are kept.
func (m *Manager) PruneHistoryByDays(userID string, days int, scope string) (*Overview, error) {
	if days < 1 {
		days = 7
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	return m.adminOp(userID, func(doc *memory.Document) {
		older := func(at string) bool {
			t, ok := memory.ParseISO(at)
			return ok && t.Before(cutoff)
		}
		for _, mode := range modesFor(scope) {
			filterTurns(doc.HistoryFor(mode), func(t memory.Turn) bool { return older(t.At) })
			filterSummaries(doc.SummariesFor(mode), func(s memory.Summary) bool { return older(s.At) })
		}
	})
}

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DeleteByDate removes every turn, summary, and metadata-tracked bucket
// entry whose local calendar day matches day (YYYY-MM-DD) in the scoped
// modes. A malformed day string is a no-op filter. Records with missing
// or unparseable timestamps are never matched.
func (m *Manager) DeleteByDate(userID, day, scope string) (*Overview, error) {
	day = strings.TrimSpace(day)
	if !dayPattern.MatchString(day) {
		return m.GetMemoryOverview(userID)
	}

	onDay := func(at string) bool {
		t, ok := memory.ParseISO(at)
		return ok && t.In(time.Local).Format("2006-01-02") == day
	}
	return m.deleteMatching(userID, scope, onDay)
}

// DeleteRecentDays removes everything written within the last days from
// the scoped modes. Unparseable timestamps never match.
func (m *Manager) DeleteRecentDays(userID string, days int, scope string) (*Overview, error) {
	if days < 1 {
		days = 7
	}
	start := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	recent := func(at string) bool {
		t, ok := memory.ParseISO(at)
		return ok && !t.Before(start)
	}
	return m.deleteMatching(userID, scope, recent)
}

// deleteMatching removes all records whose timestamp satisfies match from
// every sub-store of the scoped modes: history, summaries, and the
// metadata-tracked bucket lists.
func (m *Manager) deleteMatching(userID, scope string, match func(at string) bool) (*Overview, error) {
	return m.adminOp(userID, func(doc *memory.Document) {
		for _, mode := range modesFor(scope) {
			filterTurns(doc.HistoryFor(mode), func(t memory.Turn) bool { return match(t.At) })
			filterSummaries(doc.SummariesFor(mode), func(s memory.Summary) bool { return match(s.At) })

			b := doc.Bucket(mode)
			b.Goals = filterByMeta(b.Goals, b.Meta.Goals, match)
			b.PinnedMemories = filterByMeta(b.PinnedMemories, b.Meta.Pinned, match)
			b.CompactMeta()
		}
	})
}

// filterByMeta drops values whose metadata timestamp matches.
func filterByMeta(values []string, meta map[string]memory.MetaEntry, match func(at string) bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if entry, ok := meta[v]; ok && match(entry.UpdatedAt) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DeleteByTag removes every structure containing a case-insensitive
// substring match: bucket entries by text, turns by either side, and
// summaries by reason, summary text, or tags.
func (m *Manager) DeleteByTag(userID, tag, scope string) (*Overview, error) {
	needle := strings.ToLower(memory.NormalizeText(tag, m.Limits.MaxLength))
	if needle == "" {
		return m.GetMemoryOverview(userID)
	}
	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), needle)
	}

	return m.adminOp(userID, func(doc *memory.Document) {
		for _, mode := range modesFor(scope) {
			b := doc.Bucket(mode)
			b.Goals = filterStrings(b.Goals, contains)
			b.Notes = filterStrings(b.Notes, contains)
			b.PinnedMemories = filterStrings(b.PinnedMemories, contains)
			for k := range b.Meta.Goals {
				if contains(k) {
					delete(b.Meta.Goals, k)
				}
			}
			for k := range b.Meta.Pinned {
				if contains(k) {
					delete(b.Meta.Pinned, k)
				}
			}

			filterTurns(doc.HistoryFor(mode), func(t memory.Turn) bool {
				return contains(t.User) || contains(t.Assistant)
			})
			filterSummaries(doc.SummariesFor(mode), func(s memory.Summary) bool {
				if contains(s.Reason) || contains(s.Summary) {
					return true
				}
				for _, t := range s.Tags {
					if contains(t) {
						return true
					}
				}
				return false
			})
		}
	})
}

// DeleteMemoryItem removes one exact normalized-text value from a single
// (mode, memoryType) bucket. Empty text is a no-op.
func (m *Manager) DeleteMemoryItem(userID, mode, memoryType, text string) (*Overview, error) {
	value := memory.NormalizeText(text, m.Limits.MaxLength)
	if value == "" {
		return m.GetMemoryOverview(userID)
	}
	target := memory.NormalizeMode(mode)
	equals := func(v string) bool { return v == value }

	return m.adminOp(userID, func(doc *memory.Document) {
		b := doc.Bucket(target)
		switch strings.ToLower(strings.TrimSpace(memoryType)) {
		case "goal":
			b.Goals = filterStrings(b.Goals, equals)
			delete(b.Meta.Goals, value)
		case "pinned", "pinnedmemory", "pinned_memories":
			b.PinnedMemories = filterStrings(b.PinnedMemories, equals)
			delete(b.Meta.Pinned, value)
		default:
			b.Notes = filterStrings(b.Notes, equals)
		}
	})
}

// adminOp runs one admin mutation under the standard load/mutate/mirror/
// persist discipline and projects the result to counts.
func (m *Manager) adminOp(userID string, mutate func(doc *memory.Document)) (*Overview, error) {
	state, err := m.GetUserState(userID)
	if err != nil {
		return nil, err
	}
	mutate(state.User)
	memory.SyncMirror(state.User)
	if err := m.SaveMemory(state.Snapshot); err != nil {
		return nil, err
	}
	log.Debug("admin op applied", "user", userID)
	return overviewOf(state.User), nil
}

func filterStrings(values []string, drop func(string) bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !drop(v) {
			out = append(out, v)
		}
	}
	return out
}

func filterTurns(list *[]memory.Turn, drop func(memory.Turn) bool) {
	out := make([]memory.Turn, 0, len(*list))
	for _, t := range *list {
		if !drop(t) {
			out = append(out, t)
		}
	}
	*list = out
}

func filterSummaries(list *[]memory.Summary, drop func(memory.Summary) bool) {
	out := make([]memory.Summary, 0, len(*list))
	for _, s := range *list {
		if !drop(s) {
			out = append(out, s)
		}
	}
	*list = out
}
