// Package engine orchestrates the memory lifecycle: every operation loads
// the snapshot through the store, runs migration and decay, mutates the
// document through the model primitives, resyncs the legacy mirror, and
// writes the whole snapshot back in one transaction.
//
// The engine assumes a single writer per user document. Concurrent calls
// for the same user are not serialized here; callers own that. Documents
// of different users are independent.
package engine

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// Manager is the memory lifecycle engine.
type Manager struct {
	DB     *store.DB
	Limits memory.Limits
	Mode   config.ModeProfile
}

// New creates a Manager with the given store and configuration.
func New(db *store.DB, cfg config.Config) *Manager {
	return &Manager{
		DB:     db,
		Limits: cfg.Memory.Limits(),
		Mode:   cfg.Mode,
	}
}

// State is what a load returns: the full snapshot, the requested user's
// live document, and the applied mode profile.
type State struct {
	Snapshot *memory.Snapshot
	User     *memory.Document
	Mode     config.ModeProfile
}

// MaxPinned returns the effective pinned-memory cap.
func (m *Manager) MaxPinned() int {
	if m.Mode.MaxPinnedMemories > 0 {
		return m.Mode.MaxPinnedMemories
	}
	return m.Limits.PinnedLimit
}

// GetUserState loads (creating on first access) the user's document. The
// load path runs schema migration, normalization, decay and forgetting,
// applies the mode profile (fixed preferred name, seeded pinned memories),
// resyncs the mirror, and persists the result.
func (m *Manager) GetUserState(userID string) (*State, error) {
	snapshot, err := m.DB.Load(m.Limits)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	memory.Migrate(snapshot, m.Limits)

	doc, ok := snapshot.Users[userID]
	if !ok {
		doc = memory.DefaultDocument(m.Limits)
		snapshot.Users[userID] = doc
		log.Debug("created user document", "user", userID)
	} else {
		memory.Normalize(doc, m.Limits)
	}

	memory.ApplyDecayAndForget(doc, m.Limits, time.Now())
	m.applyModeProfile(doc)
	memory.SyncMirror(doc)

	if err := m.DB.Save(snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	return &State{Snapshot: snapshot, User: doc, Mode: m.Mode}, nil
}

// applyModeProfile enforces the external mode-config collaborator: a fixed
// preferred name always wins, and configured pinned memories are unioned
// into the active bucket up to the effective cap.
func (m *Manager) applyModeProfile(doc *memory.Document) {
	if m.Mode.FixedPreferredName != "" {
		doc.Profile.PreferredName = m.Mode.FixedPreferredName
	}
	if len(m.Mode.PinnedMemories) == 0 {
		return
	}

	bucket := doc.Bucket(doc.ActiveMode())
	now := memory.NowISO()
	for _, text := range m.Mode.PinnedMemories {
		value := memory.NormalizeText(text, m.Limits.MaxLength)
		if value == "" {
			continue
		}
		if _, ok := bucket.Meta.Pinned[value]; ok {
			continue
		}
		score := memory.Score(value, m.Limits)
		bucket.AddPinned(value, score, m.MaxPinned(), m.Limits, now)
	}
}

// SaveMemory persists a snapshot without validating it; callers are
// trusted to have mutated it through the model primitives.
func (m *Manager) SaveMemory(s *memory.Snapshot) error {
	return m.DB.Save(s)
}

// ResetUserState replaces the user's document with the default seed state.
func (m *Manager) ResetUserState(userID string) (*memory.Document, error) {
	snapshot, err := m.DB.Load(m.Limits)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	memory.Migrate(snapshot, m.Limits)

	doc := memory.DefaultDocument(m.Limits)
	snapshot.Users[userID] = doc
	if err := m.DB.Save(snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	log.Info("reset user state", "user", userID)
	return doc, nil
}

// AddNote appends a note to the user's active bucket and persists.
func (m *Manager) AddNote(userID, note string) error {
	state, err := m.GetUserState(userID)
	if err != nil {
		return err
	}
	doc := state.User
	doc.Bucket(doc.ActiveMode()).AddNote(note, m.Limits)
	memory.SyncMirror(doc)
	return m.SaveMemory(state.Snapshot)
}

// AddPinnedMemory quality-gates and appends a pinned memory to the active
// bucket. Returns whether it was stored, plus its score.
func (m *Manager) AddPinnedMemory(userID, text string) (bool, float64, error) {
	state, err := m.GetUserState(userID)
	if err != nil {
		return false, 0, err
	}
	doc := state.User

	accept, score := memory.ShouldStore(text, m.Limits.QualityThreshold, m.Limits)
	if !accept {
		log.Debug("pinned memory rejected", "user", userID, "score", score)
		return false, score, nil
	}

	doc.Bucket(doc.ActiveMode()).AddPinned(text, score, m.MaxPinned(), m.Limits, memory.NowISO())
	memory.SyncMirror(doc)
	if err := m.SaveMemory(state.Snapshot); err != nil {
		return false, score, err
	}
	return true, score, nil
}

// SetPreferredName sets the user's preferred name; a fixed name from the
// mode profile always wins.
func (m *Manager) SetPreferredName(userID, name string) error {
	state, err := m.GetUserState(userID)
	if err != nil {
		return err
	}
	if m.Mode.FixedPreferredName == "" {
		state.User.Profile.PreferredName = memory.NormalizeText(name, 0)
	}
	return m.SaveMemory(state.Snapshot)
}

// SetModeExtras replaces the uncensored-mode extras lists. A nil slice
// leaves the existing list in place.
func (m *Manager) SetModeExtras(userID string, instructions, memories []string) error {
	state, err := m.GetUserState(userID)
	if err != nil {
		return err
	}
	extras := &state.User.Profile.ModeExtras
	if instructions != nil {
		extras.UncensoredInstructions = cleanList(instructions, 20)
	}
	if memories != nil {
		extras.UncensoredMemories = cleanList(memories, 40)
	}
	return m.SaveMemory(state.Snapshot)
}

func cleanList(values []string, max int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = memory.NormalizeText(v, 0)
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// RecordTurn appends one exchange to the active mode's history, learns
// from the user's message, runs retention and compaction for that mode,
// and persists.
func (m *Manager) RecordTurn(userID, userText, assistantText string) error {
	state, err := m.GetUserState(userID)
	if err != nil {
		return err
	}
	doc := state.User
	mode := doc.ActiveMode()
	now := time.Now()

	turn := memory.Turn{
		At:        memory.FormatISO(now),
		User:      memory.Truncate(userText, m.Limits.TurnMaxChars),
		Assistant: memory.Truncate(assistantText, m.Limits.TurnMaxChars),
	}
	history := doc.HistoryFor(mode)
	*history = append(*history, turn)

	m.UpdateProfileFromMessage(doc, userText)
	memory.ApplyRetentionAndCompaction(doc, mode, m.Limits, now)
	memory.SyncMirror(doc)

	return m.SaveMemory(state.Snapshot)
}

// ApplyRetentionAndCompaction runs the retention and compaction pass for
// one mode of a loaded document. Exposed for callers that batch multiple
// mutations before saving.
func (m *Manager) ApplyRetentionAndCompaction(doc *memory.Document, mode memory.Mode) {
	memory.ApplyRetentionAndCompaction(doc, mode, m.Limits, time.Now())
}
