package memory

import (
	"regexp"
	"strings"
)

// Quality scoring for long-term-memory admission. Pure and deterministic:
// the same text always yields the same score.
//
// Base 0.35, bonuses for useful length, domain keywords, digits and
// terminal punctuation; penalties for filler acknowledgements, character
// runs, and low-value tokens. Clamped to [0,1].

var (
	// Domain-relevance vocabulary. Product data, not a structural
	// contract; swapping it does not affect any engine invariant.
	keywordPattern = regexp.MustCompile(`(?i)\b(risk|risiko|drawdown|goal|ziel|style|preferred|name|paper|trade|trading|mode|always|never|important|wichtig)\b`)

	// Bare acknowledgements that carry no memory value on their own.
	fillerPattern = regexp.MustCompile(`(?i)^(ok|okay|lol|haha|hmm|hi|hey|yo|nice|cool|klar|passt|jo)$`)

	lowValuePattern = regexp.MustCompile(`(?i)\b(idk|whatever|egal)\b`)

	digitPattern = regexp.MustCompile(`\d`)
)

// Score rates text for long-term-memory worthiness in [0,1].
func Score(text string, lim Limits) float64 {
	value := NormalizeText(text, lim.MaxLength)
	if value == "" {
		return 0
	}

	score := 0.35
	n := len([]rune(value))

	if n >= lim.MinLength && n <= lim.MaxLength {
		score += 0.20
	}
	if keywordPattern.MatchString(value) {
		score += 0.20
	}
	if digitPattern.MatchString(value) {
		score += 0.05
	}
	if strings.ContainsAny(value, ".!?") {
		score += 0.03
	}

	if fillerPattern.MatchString(value) {
		score -= 0.45
	}
	if hasCharRun(value, 5) {
		score -= 0.20
	}
	if lowValuePattern.MatchString(value) {
		score -= 0.20
	}

	return clamp01(score)
}

// ShouldStore reports whether text clears minScore, along with the score
// for logging.
func ShouldStore(text string, minScore float64, lim Limits) (bool, float64) {
	score := Score(text, lim)
	return score >= minScore, score
}

// hasCharRun reports whether any rune repeats at least n times
// consecutively. RE2 has no backreferences, so this is a loop.
func hasCharRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
