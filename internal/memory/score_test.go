package memory

import (
	"math"
	"strings"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreFillerRejected(t *testing.T) {
	lim := DefaultLimits()
	for _, text := range []string{"ok", "lol", "hmm", "jo"} {
		if got := Score(text, lim); got >= lim.QualityThreshold {
			t.Errorf("Score(%q) = %f, want below threshold %f", text, got, lim.QualityThreshold)
		}
	}
}

func TestScoreGoalSentence(t *testing.T) {
	lim := DefaultLimits()
	text := "Risk limit is 2% max drawdown."

	// base 0.35 + length 0.20 + keyword 0.20 + digit 0.05 + punctuation 0.03
	got := Score(text, lim)
	if !almostEqual(got, 0.83) {
		t.Errorf("Score(%q) = %f, want 0.83", text, got)
	}
	if got < lim.QualityThreshold {
		t.Errorf("goal sentence should clear threshold %f, got %f", lim.QualityThreshold, got)
	}
}

func TestScoreEmpty(t *testing.T) {
	lim := DefaultLimits()
	if got := Score("", lim); got != 0 {
		t.Errorf("Score(\"\") = %f, want 0", got)
	}
	if got := Score("   \t\n  ", lim); got != 0 {
		t.Errorf("Score(whitespace) = %f, want 0", got)
	}
}

func TestScoreCharRunPenalty(t *testing.T) {
	lim := DefaultLimits()
	// 7-rune run, below min length: 0.35 - 0.20
	if got := Score("aaaaaaa", lim); !almostEqual(got, 0.15) {
		t.Errorf("Score(char run) = %f, want 0.15", got)
	}
}

func TestScoreLowValueTokens(t *testing.T) {
	lim := DefaultLimits()
	with := Score("idk maybe something about plans", lim)
	without := Score("brr maybe something about plans", lim)
	if !almostEqual(without-with, 0.20) {
		t.Errorf("low-value penalty = %f, want 0.20", without-with)
	}
}

func TestScoreClamped(t *testing.T) {
	lim := DefaultLimits()
	if got := Score("ok", lim); got != 0 {
		t.Errorf("filler score = %f, want clamped to 0", got)
	}
	long := strings.Repeat("x ", 300)
	if got := Score(long, lim); got < 0 || got > 1 {
		t.Errorf("score out of range: %f", got)
	}
}

func TestScoreDeterministic(t *testing.T) {
	lim := DefaultLimits()
	text := "Always use paper trading before going live."
	first := Score(text, lim)
	for i := 0; i < 5; i++ {
		if got := Score(text, lim); got != first {
			t.Fatalf("score changed between calls: %f vs %f", got, first)
		}
	}
}

func TestScoreNormalizesBeforeScoring(t *testing.T) {
	lim := DefaultLimits()
	a := Score("my   goal is\tconsistency", lim)
	b := Score("my goal is consistency", lim)
	if a != b {
		t.Errorf("whitespace variants scored differently: %f vs %f", a, b)
	}
}

func TestShouldStore(t *testing.T) {
	lim := DefaultLimits()

	accept, score := ShouldStore("Risk limit is 2% max drawdown.", lim.QualityThreshold, lim)
	if !accept {
		t.Errorf("expected accept, score %f", score)
	}

	accept, score = ShouldStore("ok", lim.QualityThreshold, lim)
	if accept {
		t.Errorf("expected reject, score %f", score)
	}
	if score != 0 {
		t.Errorf("filler score = %f, want 0", score)
	}
}
