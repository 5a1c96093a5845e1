// Package phonetic grades how close a misread word sounds to the word the
// reader was asked to say.
//
// Two stages are combined:
//
//  1. Double Metaphone codes are computed for every token on both sides. Any
//     shared code marks the pair as a phonetic match.
//  2. Jaro-Winkler similarity on the lower-cased strings gives the score. A
//     phonetic match needs a lower score to count as a near miss than a pair
//     that only looks alike.
//
// Multi-word spans ("bat tub" for "bathtub") are compared whole, with spaces
// stripped, and pairwise per token; the best score wins.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.60
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Grader].
type Option func(*Grader)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-matched pair to count as a near miss. Default: 0.60.
func WithPhoneticThreshold(threshold float64) Option {
	return func(g *Grader) {
		g.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a pair without
// a phonetic match to count as a near miss. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(g *Grader) {
		g.fuzzyThreshold = threshold
	}
}

// Grader scores expected/heard pairs. It is read-only after construction and
// safe for concurrent use.
type Grader struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Grader] configured with the supplied options.
func New(opts ...Option) *Grader {
	g := &Grader{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Grade is the verdict for one pair.
type Grade struct {
	// Score is the best Jaro-Winkler similarity, in [0, 1].
	Score float64

	// Phonetic reports whether the two sides share a Double Metaphone code.
	Phonetic bool

	// NearMiss reports whether the heard words are a plausible attempt at the
	// expected ones.
	NearMiss bool
}

// Grade compares expected with heard. Either side may hold several
// space-separated words. Empty input grades as zero.
func (g *Grader) Grade(expected, heard string) Grade {
	expTokens := strings.Fields(strings.ToLower(expected))
	heardTokens := strings.Fields(strings.ToLower(heard))
	if len(expTokens) == 0 || len(heardTokens) == 0 {
		return Grade{}
	}

	phonetic := codesOverlap(codesForTokens(expTokens), codesForTokens(heardTokens))
	score := bestJWScore(heardTokens, expTokens)

	threshold := g.fuzzyThreshold
	if phonetic {
		threshold = g.phoneticThreshold
	}
	return Grade{Score: score, Phonetic: phonetic, NearMiss: score >= threshold}
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the highest Jaro-Winkler similarity over the full strings,
// the space-stripped strings, and every token pair.
func bestJWScore(a, b []string) float64 {
	score := matchr.JaroWinkler(strings.Join(a, " "), strings.Join(b, " "), false)

	if len(a) > 1 || len(b) > 1 {
		if s := matchr.JaroWinkler(strings.Join(a, ""), strings.Join(b, ""), false); s > score {
			score = s
		}
	}

	for _, x := range a {
		for _, y := range b {
			if s := matchr.JaroWinkler(x, y, false); s > score {
				score = s
			}
		}
	}
	return score
}
