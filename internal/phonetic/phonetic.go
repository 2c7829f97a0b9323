// Package phonetic matches recognizer output against a known vocabulary of
// clinical keywords when the recognizer misspells them ("penicilin",
// "hypertention"). It is used by the lexicon as an opt-in second pass for
// space-delimited languages.
//
// Matching runs in two stages:
//
//  1. Candidate filtering by Double Metaphone: a vocabulary term whose
//     primary or secondary code overlaps with the input's codes is a
//     phonetic candidate and only needs to clear the phonetic threshold.
//  2. Jaro-Winkler similarity: without a phonetic candidate, a term must
//     clear the stricter fuzzy threshold on pure string similarity.
//
// A [Matcher] is read-only after construction and safe for concurrent use.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.88
	defaultFuzzyThreshold    = 0.93

	// minTermLen keeps short terms ("bp", "hr", "ct") out of fuzzy matching;
	// Jaro-Winkler on two or three letters is mostly noise.
	minTermLen = 5
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term whose
// metaphone codes overlap the input. Default: 0.88.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.phoneticThreshold = threshold
		}
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for terms without
// phonetic overlap. Default: 0.93.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		if threshold > 0 {
			m.fuzzyThreshold = threshold
		}
	}
}

// Matcher finds the vocabulary term most similar to a recognized token.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with opts.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Eligible reports whether term can take part in fuzzy matching: a single
// ASCII word of at least five letters. CJK terms are always matched exactly.
func Eligible(term string) bool {
	if len(term) < minTermLen {
		return false
	}
	for _, r := range term {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Match returns the vocabulary term closest to token. When nothing clears the
// thresholds, it returns ("", 0, false). Ineligible tokens and terms are
// skipped.
func (m *Matcher) Match(token string, vocabulary []string) (term string, confidence float64, ok bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if !Eligible(token) || len(vocabulary) == 0 {
		return "", 0, false
	}
	tp, ts := matchr.DoubleMetaphone(token)

	var (
		best      string
		bestScore float64
		bestPhon  bool
	)
	for _, v := range vocabulary {
		cand := strings.ToLower(v)
		if !Eligible(cand) {
			continue
		}
		score := matchr.JaroWinkler(token, cand, false)
		vp, vs := matchr.DoubleMetaphone(cand)
		phon := overlaps(tp, ts, vp, vs)

		switch {
		case phon && score >= m.phoneticThreshold:
			if !bestPhon || score > bestScore {
				best, bestScore, bestPhon = v, score, true
			}
		case !phon && !bestPhon && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = v, score
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// MatchAny reports the first vocabulary term matched by any whitespace token
// of text, together with the token that matched.
func (m *Matcher) MatchAny(text string, vocabulary []string) (term, token string, ok bool) {
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if t, _, hit := m.Match(tok, vocabulary); hit {
			return t, tok, true
		}
	}
	return "", "", false
}

// overlaps reports whether the two metaphone code pairs share a non-empty code.
func overlaps(ap, as, bp, bs string) bool {
	for _, a := range [2]string{ap, as} {
		if a == "" {
			continue
		}
		if a == bp || a == bs {
			return true
		}
	}
	return false
}
