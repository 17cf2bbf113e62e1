package engine

import (
	"testing"

	"github.com/lazypower/recall/internal/config"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

func testManager(t *testing.T, cfg config.Config) *Manager {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, cfg)
}

func TestGetUserStateCreatesDefault(t *testing.T) {
	m := testManager(t, config.Default())

	state, err := m.GetUserState("u1")
	if err != nil {
		t.Fatalf("GetUserState: %v", err)
	}
	doc := state.User
	if doc.Profile.Style != memory.DefaultStyle {
		t.Errorf("style = %q", doc.Profile.Style)
	}
	goals := doc.Bucket(memory.ModeNormal).Goals
	if len(goals) != 1 || goals[0] != memory.SeedGoal {
		t.Errorf("goals = %v, want seed goal", goals)
	}

	// The created document is persisted, not just in memory.
	again, err := m.GetUserState("u1")
	if err != nil {
		t.Fatalf("second GetUserState: %v", err)
	}
	if len(again.User.Bucket(memory.ModeNormal).Goals) != 1 {
		t.Errorf("document not persisted: %v", again.User.Bucket(memory.ModeNormal).Goals)
	}
}

func TestRecordTurnAppendsHistory(t *testing.T) {
	m := testManager(t, config.Default())

	if err := m.RecordTurn("u1", "hello there friend", "hi, good to see you"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}

	state, err := m.GetUserState("u1")
	if err != nil {
		t.Fatalf("GetUserState: %v", err)
	}
	if len(state.User.History) != 1 {
		t.Fatalf("history = %v, want one turn", state.User.History)
	}
	turn := state.User.History[0]
	if turn.User != "hello there friend" || turn.Assistant != "hi, good to see you" {
		t.Errorf("turn = %+v", turn)
	}
	if turn.At == "" {
		t.Error("turn has no timestamp")
	}
}

func TestRecordTurnTruncatesLongText(t *testing.T) {
	cfg := config.Default()
	cfg.Memory.TurnMaxChars = 10
	m := testManager(t, cfg)

	if err := m.RecordTurn("u1", "this is a very long user message", "short"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	state, _ := m.GetUserState("u1")
	if got := state.User.History[0].User; len([]rune(got)) != 10 {
		t.Errorf("user text = %q, want 10 runes", got)
	}
}

func TestRecordTurnLearnsName(t *testing.T) {
	m := testManager(t, config.Default())

	if err := m.RecordTurn("u1", "hi, my name is Alex", "nice to meet you Alex"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	state, _ := m.GetUserState("u1")
	if state.User.Profile.PreferredName != "Alex" {
		t.Errorf("name = %q, want Alex", state.User.Profile.PreferredName)
	}
}

func TestRecordTurnLearnsGoal(t *testing.T) {
	m := testManager(t, config.Default())

	if err := m.RecordTurn("u1", "my goal is to keep drawdown under 5% this year", "got it"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	state, _ := m.GetUserState("u1")
	goals := state.User.Bucket(memory.ModeNormal).Goals
	found := false
	for _, g := range goals {
		if g == "to keep drawdown under 5% this year" {
			found = true
		}
	}
	if !found {
		t.Errorf("goals = %v, want learned goal", goals)
	}
}

func TestRecordTurnRemembersExplicitRequest(t *testing.T) {
	m := testManager(t, config.Default())

	if err := m.RecordTurn("u1", "merke dir bitte: immer paper trading vor echtem Einsatz", "notiert"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	state, _ := m.GetUserState("u1")
	pinned := state.User.Bucket(memory.ModeNormal).PinnedMemories
	if len(pinned) == 0 {
		t.Errorf("no pinned memory stored, notes = %v", state.User.Bucket(memory.ModeNormal).Notes)
	}
}

func TestRecordTurnUncensoredModeIsolated(t *testing.T) {
	m := testManager(t, config.Default())

	state, err := m.GetUserState("u1")
	if err != nil {
		t.Fatalf("GetUserState: %v", err)
	}
	state.User.Profile.Mode = memory.ModeUncensored
	memory.SyncMirror(state.User)
	if err := m.SaveMemory(state.Snapshot); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	if err := m.RecordTurn("u1", "an uncensored exchange", "reply"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}

	state, _ = m.GetUserState("u1")
	if len(state.User.History) != 0 {
		t.Errorf("normal history = %v, want empty", state.User.History)
	}
	if len(state.User.UncensoredHistory) != 1 {
		t.Errorf("uncensored history = %v, want one turn", state.User.UncensoredHistory)
	}
}

func TestAddPinnedMemoryQualityGate(t *testing.T) {
	m := testManager(t, config.Default())

	stored, score, err := m.AddPinnedMemory("u1", "ok")
	if err != nil {
		t.Fatalf("AddPinnedMemory: %v", err)
	}
	if stored {
		t.Errorf("filler stored with score %f", score)
	}

	stored, score, err = m.AddPinnedMemory("u1", "Always cap risk at 2% per trade.")
	if err != nil {
		t.Fatalf("AddPinnedMemory: %v", err)
	}
	if !stored {
		t.Errorf("quality text rejected with score %f", score)
	}

	state, _ := m.GetUserState("u1")
	pinned := state.User.Bucket(memory.ModeNormal).PinnedMemories
	if len(pinned) != 1 {
		t.Errorf("pinned = %v, want exactly the accepted entry", pinned)
	}
}

func TestAddNote(t *testing.T) {
	m := testManager(t, config.Default())

	if err := m.AddNote("u1", "prefers evening sessions"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	state, _ := m.GetUserState("u1")
	notes := state.User.Bucket(memory.ModeNormal).Notes
	if len(notes) != 1 || notes[0] != "prefers evening sessions" {
		t.Errorf("notes = %v", notes)
	}
}

func TestSetPreferredName(t *testing.T) {
	m := testManager(t, config.Default())
	if err := m.SetPreferredName("u1", "  Jo  "); err != nil {
		t.Fatalf("SetPreferredName: %v", err)
	}
	state, _ := m.GetUserState("u1")
	if state.User.Profile.PreferredName != "Jo" {
		t.Errorf("name = %q", state.User.Profile.PreferredName)
	}
}

func TestFixedPreferredNameWins(t *testing.T) {
	cfg := config.Default()
	cfg.Mode.FixedPreferredName = "Captain"
	m := testManager(t, cfg)

	if err := m.SetPreferredName("u1", "Jo"); err != nil {
		t.Fatalf("SetPreferredName: %v", err)
	}
	state, _ := m.GetUserState("u1")
	if state.User.Profile.PreferredName != "Captain" {
		t.Errorf("name = %q, want fixed name", state.User.Profile.PreferredName)
	}

	if err := m.RecordTurn("u1", "my name is Alex", "hi"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	state, _ = m.GetUserState("u1")
	if state.User.Profile.PreferredName != "Captain" {
		t.Errorf("name = %q, fixed name must survive learning", state.User.Profile.PreferredName)
	}
}

func TestConfigSeededPins(t *testing.T) {
	cfg := config.Default()
	cfg.Mode.PinnedMemories = []string{"Assistant speaks German and English."}
	m := testManager(t, cfg)

	state, err := m.GetUserState("u1")
	if err != nil {
		t.Fatalf("GetUserState: %v", err)
	}
	pinned := state.User.Bucket(memory.ModeNormal).PinnedMemories
	if len(pinned) != 1 || pinned[0] != "Assistant speaks German and English." {
		t.Errorf("pinned = %v, want config seed", pinned)
	}

	// Loading again must not duplicate the seed.
	state, _ = m.GetUserState("u1")
	if len(state.User.Bucket(memory.ModeNormal).PinnedMemories) != 1 {
		t.Errorf("seed duplicated: %v", state.User.Bucket(memory.ModeNormal).PinnedMemories)
	}
}

func TestSetModeExtras(t *testing.T) {
	m := testManager(t, config.Default())

	if err := m.SetModeExtras("u1", []string{" stay playful "}, nil); err != nil {
		t.Fatalf("SetModeExtras: %v", err)
	}
	state, _ := m.GetUserState("u1")
	extras := state.User.Profile.ModeExtras
	if len(extras.UncensoredInstructions) != 1 || extras.UncensoredInstructions[0] != "stay playful" {
		t.Errorf("instructions = %v", extras.UncensoredInstructions)
	}

	// A nil slice leaves the stored list untouched.
	if err := m.SetModeExtras("u1", nil, []string{"likes cats"}); err != nil {
		t.Fatalf("SetModeExtras: %v", err)
	}
	state, _ = m.GetUserState("u1")
	extras = state.User.Profile.ModeExtras
	if len(extras.UncensoredInstructions) != 1 {
		t.Errorf("instructions lost: %v", extras.UncensoredInstructions)
	}
	if len(extras.UncensoredMemories) != 1 {
		t.Errorf("memories = %v", extras.UncensoredMemories)
	}
}

func TestResetUserState(t *testing.T) {
	m := testManager(t, config.Default())

	if err := m.RecordTurn("u1", "merke dir: wichtig ist das Trading-Limit von 2%", "ok"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	if _, err := m.ResetUserState("u1"); err != nil {
		t.Fatalf("ResetUserState: %v", err)
	}

	state, _ := m.GetUserState("u1")
	doc := state.User
	if len(doc.History) != 0 {
		t.Errorf("history = %v, want empty", doc.History)
	}
	goals := doc.Bucket(memory.ModeNormal).Goals
	if len(goals) != 1 || goals[0] != memory.SeedGoal {
		t.Errorf("goals = %v, want seed only", goals)
	}
	if len(doc.Bucket(memory.ModeNormal).PinnedMemories) != 0 {
		t.Errorf("pinned = %v, want empty", doc.Bucket(memory.ModeNormal).PinnedMemories)
	}
}

func TestMaxPinnedFromModeProfile(t *testing.T) {
	cfg := config.Default()
	cfg.Mode.MaxPinnedMemories = 3
	m := testManager(t, cfg)
	if m.MaxPinned() != 3 {
		t.Errorf("MaxPinned = %d, want 3", m.MaxPinned())
	}

	cfg.Mode.MaxPinnedMemories = 0
	m = testManager(t, cfg)
	if m.MaxPinned() != m.Limits.PinnedLimit {
		t.Errorf("MaxPinned = %d, want default %d", m.MaxPinned(), m.Limits.PinnedLimit)
	}
}

func TestRoleplayDoesNotHijackLearning(t *testing.T) {
	m := testManager(t, config.Default())

	state, _ := m.GetUserState("u1")
	state.User.Profile.Mode = memory.ModeUncensored
	memory.SyncMirror(state.User)
	m.SaveMemory(state.Snapshot)

	if err := m.RecordTurn("u1", "*kisses you* my name is Roxy", "oh my"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	state, _ = m.GetUserState("u1")
	if state.User.Profile.PreferredName == "Roxy" {
		t.Error("roleplay message changed the preferred name")
	}
}

func TestDoNotLearnPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Mode.DoNotLearn = []string{"preferredName"}
	m := testManager(t, cfg)

	if err := m.RecordTurn("u1", "merke dir: call me Overlord from now on", "noted"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	state, _ := m.GetUserState("u1")
	for _, p := range state.User.Bucket(memory.ModeNormal).PinnedMemories {
		if p == "call me Overlord from now on" {
			t.Error("do-not-learn rule ignored for name preference")
		}
	}
}
