package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lazypower/recall/internal/memory"
)

// Free-text profile learning. A user message is pattern-matched for name
// declarations, risk appetite, style requests, explicit goals, and
// explicit remember requests; matches are routed into the model
// primitives, quality-gated by the scorer where long-term storage is at
// stake.

var (
	roleplayActionPattern = regexp.MustCompile(`\*[^*]{2,}\*`)
	roleplayNsfwPattern   = regexp.MustCompile(`(?i)\b(k[üu]ss|kuss|nackt|brust|blow|sex|sexy|dominant|rollenspiel|roleplay|horny|naughty)\b`)
	permanentSavePattern  = regexp.MustCompile(`(?i)\b(merke dir dauerhaft|remember permanently|save permanently)\b`)

	namePattern = regexp.MustCompile(`(?i)(ich hei[sß]e|my name is|call me|nenn mich|ich bin)\s+([a-zA-ZÄÖÜäöüß-]+)`)

	riskDownPattern    = regexp.MustCompile(`(?i)risiko|drawdown|sicher`)
	riskUpPattern      = regexp.MustCompile(`(?i)aggressiv|mehr trades|mehr risiko`)
	briefStylePattern  = regexp.MustCompile(`(?i)k[uü]rzer|shorter|kurz und knapp`)
	detailStylePattern = regexp.MustCompile(`(?i)mehr details|ausf[uü]hrlich|longer`)
	moreEmojiPattern   = regexp.MustCompile(`(?i)mehr emoji|s[uü][sß]er|cute`)
	fewerEmojiPattern  = regexp.MustCompile(`(?i)weniger emoji|seri[oö]ser|sachlicher`)

	goalPattern     = regexp.MustCompile(`(?i)(mein ziel ist|my goal is|ziel:)\s*(.+)$`)
	rememberPattern = regexp.MustCompile(`(?i)^(merke dir|remember this|wichtig:)\s*`)
	rememberCue     = regexp.MustCompile(`(?i)(merke dir|remember this|wichtig:)`)

	namePreferencePattern    = regexp.MustCompile(`(?i)(my name is|call me|ich hei[sß]e|nenn mich|ich bin)`)
	assistantIdentityPattern = regexp.MustCompile(`(?i)(your name|du bist|you are|assistant name|dein name|language|sprache)`)
	languagePattern          = regexp.MustCompile(`(?i)language|sprache`)
)

// UpdateProfileFromMessage learns profile signals from one user message,
// mutating the document in place. Callers persist afterwards.
func (m *Manager) UpdateProfileFromMessage(doc *memory.Document, message string) {
	msg := strings.TrimSpace(message)
	mode := doc.ActiveMode()
	memory.EnsureModeMemory(doc, m.Limits)
	bucket := doc.Bucket(mode)

	// Roleplay must not hijack long-term behavior unless the save is
	// explicitly requested as permanent.
	roleplayLikely := mode == memory.ModeUncensored &&
		(roleplayActionPattern.MatchString(msg) || roleplayNsfwPattern.MatchString(msg))
	if roleplayLikely && !permanentSavePattern.MatchString(msg) {
		memory.SyncMirror(doc)
		return
	}

	if match := namePattern.FindStringSubmatch(msg); match != nil && m.Mode.FixedPreferredName == "" {
		doc.Profile.PreferredName = match[2]
		bucket.AddNote("Name preference set to "+match[2], m.Limits)
	}

	if riskDownPattern.MatchString(msg) {
		bucket.AddNote("User priorisiert konservatives Risiko.", m.Limits)
	}
	if riskUpPattern.MatchString(msg) {
		bucket.AddNote("User möchte zeitweise aggressiveres Trading.", m.Limits)
	}
	if briefStylePattern.MatchString(msg) {
		doc.Profile.Style = "brief"
		bucket.AddNote("Antwortstil: kurz und direkt.", m.Limits)
	}
	if detailStylePattern.MatchString(msg) {
		doc.Profile.Style = "detailed"
		bucket.AddNote("Antwortstil: detailreicher.", m.Limits)
	}
	if moreEmojiPattern.MatchString(msg) {
		bucket.AddNote("Wünscht süßeren Stil mit mehr Emojis.", m.Limits)
	}
	if fewerEmojiPattern.MatchString(msg) {
		bucket.AddNote("Wünscht sachlicheren Stil mit weniger Emojis.", m.Limits)
	}

	if match := goalPattern.FindStringSubmatch(msg); match != nil {
		goal := strings.TrimSpace(memory.Truncate(match[2], 100))
		if accept, score := memory.ShouldStore(goal, m.Limits.QualityThreshold, m.Limits); goal != "" && accept {
			if bucket.AddGoal(goal, score, m.Limits, memory.NowISO()) {
				bucket.AddNote(fmt.Sprintf("Neues Ziel gespeichert: %s (quality %.2f)", goal, score), m.Limits)
			}
		}
	}

	if rememberCue.MatchString(msg) {
		pinned := strings.TrimSpace(memory.Truncate(rememberPattern.ReplaceAllString(msg, ""), 180))
		if pinned != "" && !m.blockedByPolicy(pinned) {
			if accept, score := memory.ShouldStore(pinned, m.Limits.QualityThreshold, m.Limits); accept {
				bucket.AddPinned(pinned, score, m.MaxPinned(), m.Limits, memory.NowISO())
				bucket.AddNote(fmt.Sprintf("Pinned memory gespeichert (quality %.2f).", score), m.Limits)
			} else {
				bucket.AddNote(fmt.Sprintf("Pinned memory verworfen (quality %.2f).", score), m.Limits)
			}
		}
		bucket.AddNote("Merker: "+memory.Truncate(msg, 120), m.Limits)
	}

	memory.SyncMirror(doc)
}

// blockedByPolicy applies the mode profile's do-not-learn list to a
// remember request.
func (m *Manager) blockedByPolicy(pinned string) bool {
	for _, rule := range m.Mode.DoNotLearn {
		switch rule {
		case "preferredName":
			if namePreferencePattern.MatchString(pinned) {
				return true
			}
		case "assistantProfile":
			if assistantIdentityPattern.MatchString(pinned) {
				return true
			}
		case "assistantLanguage":
			if languagePattern.MatchString(pinned) {
				return true
			}
		}
	}
	return false
}
