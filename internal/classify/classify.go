// Package classify assigns patient utterances to clinical-note sections.
//
// An utterance is assigned in one of three ways. If the clinician just asked
// a question about a known section, the whole answer goes there. Otherwise
// the utterance is split into sentences when it is long or punctuated, and
// each sentence is scored against the [lexicon.Lexicon]. Sentences that do
// not reach [DefaultMinScore] fall through a fixed chain: a time reference
// means present illness, a short fragment means chief complaint, anything
// else lands in present illness.
package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/chartvox/internal/lexicon"
	"github.com/MrWong99/chartvox/pkg/types"
)

const (
	// DefaultMinScore is one keyword's worth of evidence.
	DefaultMinScore = lexicon.KeywordWeight

	// DefaultShortRunes: fallback text shorter than this is a chief complaint.
	DefaultShortRunes = 15

	// DefaultSplitRunes: text longer than this is always split into sentences.
	DefaultSplitRunes = 100
)

// Reason records which rule produced an [Assignment].
type Reason string

const (
	ReasonPending    Reason = "pending"
	ReasonLexicon    Reason = "lexicon"
	ReasonTimeMarker Reason = "time-marker"
	ReasonShort      Reason = "short"
	ReasonDefault    Reason = "default"
	ReasonTarget     Reason = "target"
)

// Assignment is one fragment of an utterance bound for one category.
type Assignment struct {
	Category types.Category `json:"category"`
	Text     string         `json:"text"`
	Keywords []string       `json:"keywords,omitempty"`
	Score    float64        `json:"score"`
	Reason   Reason         `json:"reason"`
}

// Option configures a [Classifier].
type Option func(*Classifier)

// WithMinScore sets the lexicon score an utterance must reach to be assigned
// by keyword. Values <= 0 are ignored.
func WithMinScore(s float64) Option {
	return func(c *Classifier) {
		if s > 0 {
			c.minScore = s
		}
	}
}

// WithShortRunes sets the length below which unmatched text is treated as a
// chief complaint.
func WithShortRunes(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.shortRunes = n
		}
	}
}

// WithSplitRunes sets the length above which text is split into sentences
// even without sentence punctuation.
func WithSplitRunes(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.splitRunes = n
		}
	}
}

// Classifier is read-only after construction and safe for concurrent use.
type Classifier struct {
	lex        *lexicon.Lexicon
	minScore   float64
	shortRunes int
	splitRunes int
}

// New returns a classifier over lex.
func New(lex *lexicon.Lexicon, opts ...Option) *Classifier {
	c := &Classifier{
		lex:        lex,
		minScore:   DefaultMinScore,
		shortRunes: DefaultShortRunes,
		splitRunes: DefaultSplitRunes,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lexicon returns the lexicon the classifier scores against.
func (c *Classifier) Lexicon() *lexicon.Lexicon { return c.lex }

// MinScore returns the keyword threshold in use.
func (c *Classifier) MinScore() float64 { return c.minScore }

// Classify assigns text as a single unit, without a pending question and
// without sentence splitting. It returns the category and the terms that
// matched.
func (c *Classifier) Classify(text string) (types.Category, []string) {
	a := c.unit(strings.TrimSpace(text))
	return a.Category, a.Keywords
}

// Seed returns the category a clinician utterance asks about, or
// [types.Unclassified] when no category reaches the keyword threshold. Seeds
// never use the fallback chain: a question with no topic has no pending
// category.
func (c *Classifier) Seed(text string) (types.Category, []string) {
	m := c.lex.Best(text)
	if m.Score < c.minScore {
		return types.Unclassified, nil
	}
	return m.Category, m.Matched()
}

// Assign runs the full assignment for a patient utterance. pending is the
// category of the open clinician question, or [types.Unclassified] for none.
// Whitespace-only input yields no assignments; any other input yields at
// least one.
func (c *Classifier) Assign(text string, pending types.Category) []Assignment {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if pending.IsClassified() {
		m := c.lex.Explain(trimmed, pending)
		return []Assignment{{
			Category: pending,
			Text:     c.strip(trimmed, pending),
			Keywords: m.Matched(),
			Score:    m.Score,
			Reason:   ReasonPending,
		}}
	}

	if !c.sentenceMode(trimmed) {
		return []Assignment{c.unit(trimmed)}
	}
	var out []Assignment
	for _, frag := range SplitSentences(trimmed) {
		frag = strings.TrimSpace(frag)
		if IsBlank(frag) {
			continue
		}
		out = append(out, c.unit(frag))
	}
	if len(out) == 0 {
		return []Assignment{c.unit(trimmed)}
	}
	return out
}

// Target builds the assignment used in targeted-field mode, where every
// utterance goes to one field without classification.
func (c *Classifier) Target(text string, target types.Category) Assignment {
	trimmed := strings.TrimSpace(text)
	m := c.lex.Explain(trimmed, target)
	return Assignment{
		Category: target,
		Text:     c.strip(trimmed, target),
		Keywords: m.Matched(),
		Score:    m.Score,
		Reason:   ReasonTarget,
	}
}

func (c *Classifier) sentenceMode(text string) bool {
	return utf8.RuneCountInString(text) > c.splitRunes || strings.ContainsAny(text, "。.")
}

// unit classifies one trimmed sentence.
func (c *Classifier) unit(text string) Assignment {
	m := c.lex.Best(text)
	if m.Score >= c.minScore {
		return Assignment{
			Category: m.Category,
			Text:     c.strip(text, m.Category),
			Keywords: m.Matched(),
			Score:    m.Score,
			Reason:   ReasonLexicon,
		}
	}

	a := Assignment{Text: text, Score: m.Score, Keywords: m.Matched()}
	switch {
	case HasTimeMarker(text):
		a.Category, a.Reason = types.PresentIllness, ReasonTimeMarker
	case utf8.RuneCountInString(text) < c.shortRunes:
		a.Category, a.Reason = types.ChiefComplaint, ReasonShort
	default:
		a.Category, a.Reason = c.defaultCategory(), ReasonDefault
	}
	// Whatever matched belongs to a different category.
	if m.Category != a.Category {
		a.Keywords, a.Score = nil, 0
	}
	return a
}

func (c *Classifier) defaultCategory() types.Category {
	switch {
	case c.lex.Has(types.PresentIllness):
		return types.PresentIllness
	case c.lex.Has(types.ChiefComplaint):
		return types.ChiefComplaint
	default:
		return types.Unclassified
	}
}

func (c *Classifier) strip(text string, cat types.Category) string {
	if s, ok := c.lex.StripLabel(text, cat); ok && !IsBlank(s) {
		return s
	}
	return text
}

// IsBlank reports whether s carries no letters or digits, e.g. a final
// that is only punctuation.
func IsBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) < 0
}
