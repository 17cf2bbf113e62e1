package memory

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Retention and compaction of raw history into summaries.
//
// Retention expires turns older than RetentionDays into one
// retention-cleanup summary. Compaction then folds the oldest chunks into
// history-compaction summaries until the list fits HistoryStoreLimit.
// Retention always runs first so expired turns never count against the
// compaction budget. Both transitions are one-way: the raw text of an
// absorbed turn is gone, only the excerpted summary and tags survive.

// Summary tag classifier. Product vocabulary, pluggable without touching
// any engine invariant.
var tagPatterns = []struct {
	tag     string
	pattern *regexp.Regexp
}{
	{"risk-control", regexp.MustCompile(`risiko|drawdown|sicher|konservativ`)},
	{"risk-up", regexp.MustCompile(`aggressiv|mehr trades|mehr risiko`)},
	{"tone-cute", regexp.MustCompile(`emoji|cute|uwu|kaomoji`)},
	{"style-brief", regexp.MustCompile(`kurz|short|knapp`)},
	{"style-detailed", regexp.MustCompile(`detail|ausf[uü]hrlich|longer`)},
	{"goals", regexp.MustCompile(`ziel|goal`)},
}

// SummarizeTurns builds one lossy summary of a contiguous batch of turns:
// keyword tags over the concatenated text, plus excerpts of the first user
// line and the last assistant line. Returns nil for an empty batch.
func SummarizeTurns(turns []Turn, reason string, now time.Time) *Summary {
	if len(turns) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(t.User)
		sb.WriteString(" ")
		sb.WriteString(t.Assistant)
		sb.WriteString(" ")
	}
	text := strings.ToLower(sb.String())

	tags := []string{}
	for _, tp := range tagPatterns {
		if tp.pattern.MatchString(text) {
			tags = append(tags, tp.tag)
		}
	}

	first := Truncate(turns[0].User, 120)
	last := Truncate(turns[len(turns)-1].Assistant, 120)

	return &Summary{
		At:      FormatISO(now),
		Reason:  reason,
		Count:   len(turns),
		Tags:    tags,
		Summary: fmt.Sprintf("Turns: %d; first: %q; last: %q", len(turns), first, last),
	}
}

// ApplyRetentionAndCompaction runs both mechanisms on one mode's
// (history, summaries) pair, then caps summaries at SummaryLimit.
func ApplyRetentionAndCompaction(d *Document, m Mode, lim Limits, now time.Time) {
	history := d.HistoryFor(m)
	summaries := d.SummariesFor(m)

	// Retention: expire turns older than the cutoff. A turn with an
	// unparseable timestamp is kept.
	cutoff := now.Add(-time.Duration(lim.RetentionDays) * 24 * time.Hour)
	fresh := make([]Turn, 0, len(*history))
	var expired []Turn
	for _, t := range *history {
		if at, ok := ParseISO(t.At); ok && at.Before(cutoff) {
			expired = append(expired, t)
		} else {
			fresh = append(fresh, t)
		}
	}
	*history = fresh

	if s := SummarizeTurns(expired, ReasonRetention, now); s != nil {
		*summaries = append(*summaries, *s)
	}

	// Compaction: fold the oldest chunks until under the store limit.
	for len(*history) > lim.HistoryStoreLimit {
		chunkSize := lim.SummaryChunkSize
		if over := len(*history) - lim.HistoryStoreLimit; over < chunkSize {
			chunkSize = over
		}
		chunk := (*history)[:chunkSize]
		if s := SummarizeTurns(chunk, ReasonCompaction, now); s != nil {
			*summaries = append(*summaries, *s)
		}
		*history = (*history)[chunkSize:]
	}

	*summaries = tail(*summaries, lim.SummaryLimit)
}
