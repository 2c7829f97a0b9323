// Package lexicon holds the static category → keyword tables used to classify
// recognized text into clinical-note sections.
//
// A [Lexicon] is built once (from a built-in language profile via [Load], or
// from a YAML file via [LoadFile]) and is immutable afterwards, so a single
// instance can be shared by any number of concurrent dialogue sessions.
//
// Scoring is substring based and case-insensitive. It is deliberately not
// tokenized: short keywords can match inside unrelated words, which is an
// accepted imprecision of the scheme.
package lexicon

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/chartvox/pkg/types"
)

// Scoring weights. See [Lexicon.ScoreCategory].
const (
	AliasWeight   = 10
	KeywordWeight = 3
	TermWeight    = 2
	LabelWeight   = 10
)

// ErrUnknownLanguage is returned by [Load] for a language without a built-in
// profile.
var ErrUnknownLanguage = errors.New("lexicon: unknown language profile")

// Language identifies a built-in profile by its BCP-47 tag.
type Language string

const (
	LangZhTW Language = "zh-TW"
	LangZhCN Language = "zh-CN"
	LangEnUS Language = "en-US"
)

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = LangZhTW

// IsValid reports whether l has a built-in profile.
func (l Language) IsValid() bool {
	_, ok := builtins[l]
	return ok
}

// Languages returns the tags of all built-in profiles.
func Languages() []Language {
	return []Language{LangZhTW, LangZhCN, LangEnUS}
}

// Entry is the keyword table of one category.
type Entry struct {
	// Category is the clinical section the entry scores for.
	Category types.Category `yaml:"-"`

	// NameAliases are the section's own names ("過敏史", "allergies").
	// Mentioning one is the strongest signal.
	NameAliases []string `yaml:"aliases"`

	// Keywords are topic words for the section.
	Keywords []string `yaml:"keywords"`

	// SubLists are named groups of weaker supporting terms: symptom lists,
	// time phrases, relation terms and so on.
	SubLists map[string][]string `yaml:"sub_lists"`
}

// FuzzyMatcher finds the vocabulary term closest to a recognized token.
// [github.com/MrWong99/chartvox/internal/phonetic.Matcher] satisfies it.
type FuzzyMatcher interface {
	Match(token string, vocabulary []string) (term string, confidence float64, ok bool)
}

// Option configures a [Lexicon].
type Option func(*Lexicon)

// WithFuzzy enables a second keyword pass for misspelled ASCII keywords.
// Only keywords accepted by eligible take part; CJK keywords are always
// matched exactly.
func WithFuzzy(m FuzzyMatcher, eligible func(string) bool) Option {
	return func(l *Lexicon) {
		l.fuzzy = m
		l.fuzzyEligible = eligible
	}
}

// Match is the scoring trace of one category for one text.
type Match struct {
	Category types.Category
	Score    float64

	// Alias is the first name alias found, if any.
	Alias string

	// Keywords are the distinct keywords found, in table order.
	Keywords []string

	// Terms are the distinct sub-list terms found, in table order.
	Terms []string

	// Label is the keyword or alias used as an explicit "label:" prefix.
	Label string

	// Fuzzy are keywords matched only through the fuzzy pass.
	Fuzzy []string
}

// Matched flattens every matched term of m into one list.
func (m Match) Matched() []string {
	var out []string
	if m.Alias != "" {
		out = append(out, m.Alias)
	}
	out = append(out, m.Keywords...)
	out = append(out, m.Fuzzy...)
	out = append(out, m.Terms...)
	if m.Label != "" && !slices.Contains(out, m.Label) {
		out = append(out, m.Label)
	}
	return out
}

// compiled is the normalized, ready-to-score form of an Entry.
type compiled struct {
	entry  Entry
	terms  []string // distinct sub-list terms across all sub-lists
	labels []string // aliases ∪ keywords, longest first
	fuzzy  []string // keywords eligible for fuzzy matching
}

// Lexicon is an immutable set of keyword tables, one per classifiable
// category. All methods are safe for concurrent use.
type Lexicon struct {
	lang    Language
	entries []compiled // declaration order of types.Categories
	index   map[types.Category]int

	fuzzy         FuzzyMatcher
	fuzzyEligible func(string) bool
}

// Load returns the built-in lexicon for lang. An empty lang selects
// [DefaultLanguage].
func Load(lang Language, opts ...Option) (*Lexicon, error) {
	if lang == "" {
		lang = DefaultLanguage
	}
	build, ok := builtins[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	l, err := New(build(), opts...)
	if err != nil {
		return nil, fmt.Errorf("lexicon: built-in %s: %w", lang, err)
	}
	l.lang = lang
	return l, nil
}

// New validates entries and builds a [Lexicon] from them. Every classifiable
// category must have exactly one entry with at least one alias or keyword.
// All terms are trimmed, lower-cased and de-duplicated.
func New(entries []Entry, opts ...Option) (*Lexicon, error) {
	if err := types.ValidateFieldMapping(); err != nil {
		return nil, fmt.Errorf("lexicon: field mapping: %w", err)
	}

	byCat := make(map[types.Category]Entry, len(entries))
	var errs []error
	for _, e := range entries {
		if !e.Category.IsClassified() {
			errs = append(errs, fmt.Errorf("entry for invalid category %s", e.Category))
			continue
		}
		if _, dup := byCat[e.Category]; dup {
			errs = append(errs, fmt.Errorf("duplicate entry for %s", e.Category.FieldID()))
			continue
		}
		byCat[e.Category] = e
	}

	l := &Lexicon{index: make(map[types.Category]int, len(byCat))}
	for _, o := range opts {
		o(l)
	}

	for _, c := range types.Categories() {
		e, ok := byCat[c]
		if !ok {
			errs = append(errs, fmt.Errorf("missing entry for %s", c.FieldID()))
			continue
		}
		ce := l.compile(e)
		if len(ce.entry.NameAliases) == 0 && len(ce.entry.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("entry %s has no aliases or keywords", c.FieldID()))
			continue
		}
		l.index[c] = len(l.entries)
		l.entries = append(l.entries, ce)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Lexicon) compile(e Entry) compiled {
	ce := compiled{entry: Entry{
		Category:    e.Category,
		NameAliases: normalize(e.NameAliases),
		Keywords:    normalize(e.Keywords),
		SubLists:    make(map[string][]string, len(e.SubLists)),
	}}

	names := make([]string, 0, len(e.SubLists))
	for name := range e.SubLists {
		names = append(names, name)
	}
	slices.Sort(names)
	seen := make(map[string]bool)
	for _, name := range names {
		list := normalize(e.SubLists[name])
		ce.entry.SubLists[name] = list
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				ce.terms = append(ce.terms, t)
			}
		}
	}

	ce.labels = normalize(append(slices.Clone(ce.entry.NameAliases), ce.entry.Keywords...))
	slices.SortStableFunc(ce.labels, func(a, b string) int {
		return utf8.RuneCountInString(b) - utf8.RuneCountInString(a)
	})

	if l.fuzzy != nil && l.fuzzyEligible != nil {
		for _, kw := range ce.entry.Keywords {
			if l.fuzzyEligible(kw) {
				ce.fuzzy = append(ce.fuzzy, kw)
			}
		}
	}
	return ce
}

// normalize trims, lower-cases and de-duplicates terms, keeping first-seen
// order and dropping empty strings.
func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Language returns the profile tag the lexicon was loaded from, or "" for a
// custom table.
func (l *Lexicon) Language() Language { return l.lang }

// Has reports whether the lexicon carries an entry for c.
func (l *Lexicon) Has(c types.Category) bool {
	_, ok := l.index[c]
	return ok
}

// Entries returns a deep copy of the normalized entries in declaration order.
func (l *Lexicon) Entries() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, ce := range l.entries {
		e := Entry{
			Category:    ce.entry.Category,
			NameAliases: slices.Clone(ce.entry.NameAliases),
			Keywords:    slices.Clone(ce.entry.Keywords),
			SubLists:    make(map[string][]string, len(ce.entry.SubLists)),
		}
		for k, v := range ce.entry.SubLists {
			e.SubLists[k] = slices.Clone(v)
		}
		out = append(out, e)
	}
	return out
}

// Terms returns every alias and keyword of every category, e.g. for use as
// recognizer vocabulary hints.
func (l *Lexicon) Terms() []string {
	var out []string
	for _, ce := range l.entries {
		out = append(out, ce.entry.NameAliases...)
		out = append(out, ce.entry.Keywords...)
	}
	return normalize(out)
}

// ScoreCategory returns the non-negative score of text for category:
//
//   - +10 if any name alias occurs in text,
//   - +3 per distinct keyword occurring in text,
//   - +2 per distinct sub-list term occurring in text,
//   - +10 if text starts with a keyword or alias immediately followed by
//     ':' or '：'.
//
// Unknown categories score 0.
func (l *Lexicon) ScoreCategory(text string, category types.Category) float64 {
	return l.Explain(text, category).Score
}

// Explain is [Lexicon.ScoreCategory] with the matched terms.
func (l *Lexicon) Explain(text string, category types.Category) Match {
	i, ok := l.index[category]
	if !ok {
		return Match{Category: category}
	}
	lower := strings.ToLower(text)
	var tokens []string
	if l.fuzzy != nil {
		tokens = letterTokens(lower)
	}
	return l.explain(&l.entries[i], lower, tokens)
}

func (l *Lexicon) explain(ce *compiled, lower string, tokens []string) Match {
	m := Match{Category: ce.entry.Category}

	for _, a := range ce.entry.NameAliases {
		if strings.Contains(lower, a) {
			m.Alias = a
			m.Score += AliasWeight
			break
		}
	}

	var missed []string
	for _, kw := range ce.entry.Keywords {
		if strings.Contains(lower, kw) {
			m.Keywords = append(m.Keywords, kw)
			m.Score += KeywordWeight
		} else if len(ce.fuzzy) > 0 && slices.Contains(ce.fuzzy, kw) {
			missed = append(missed, kw)
		}
	}
	if len(missed) > 0 && len(tokens) > 0 {
		for _, tok := range tokens {
			term, _, ok := l.fuzzy.Match(tok, missed)
			if !ok || slices.Contains(m.Fuzzy, term) {
				continue
			}
			m.Fuzzy = append(m.Fuzzy, term)
			m.Score += KeywordWeight
		}
	}

	for _, t := range ce.terms {
		if strings.Contains(lower, t) {
			m.Terms = append(m.Terms, t)
			m.Score += TermWeight
		}
	}

	if label, ok := labelPrefix(lower, ce.labels); ok {
		m.Label = label
		m.Score += LabelWeight
	}
	return m
}

// BestCategory returns the highest-scoring category for text. Ties go to the
// category declared first. When nothing scores above zero it returns
// (Unclassified, 0).
func (l *Lexicon) BestCategory(text string) (types.Category, float64) {
	m := l.Best(text)
	return m.Category, m.Score
}

// Best is [Lexicon.BestCategory] with the scoring trace of the winner.
func (l *Lexicon) Best(text string) Match {
	lower := strings.ToLower(text)
	var tokens []string
	if l.fuzzy != nil {
		tokens = letterTokens(lower)
	}
	best := Match{Category: types.Unclassified}
	for i := range l.entries {
		m := l.explain(&l.entries[i], lower, tokens)
		if m.Score > best.Score {
			best = m
		}
	}
	return best
}

// StripLabel removes a leading "label:" prefix from text when the label is an
// alias or keyword of category, e.g. "主訴：頭痛三天" → "頭痛三天". It reports
// whether a label was removed.
func (l *Lexicon) StripLabel(text string, category types.Category) (string, bool) {
	i, ok := l.index[category]
	if !ok {
		return text, false
	}
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	for _, label := range l.entries[i].labels {
		n := utf8.RuneCountInString(label)
		head, rest := splitRunes(trimmed, n)
		if !strings.EqualFold(head, label) {
			continue
		}
		if r, ok := strings.CutPrefix(rest, ":"); ok {
			return strings.TrimLeftFunc(r, unicode.IsSpace), true
		}
		if r, ok := strings.CutPrefix(rest, "："); ok {
			return strings.TrimLeftFunc(r, unicode.IsSpace), true
		}
	}
	return text, false
}

// labelPrefix reports the first label (longest first) that lower starts with,
// immediately followed by an ASCII or full-width colon.
func labelPrefix(lower string, labels []string) (string, bool) {
	s := strings.TrimLeftFunc(lower, unicode.IsSpace)
	for _, label := range labels {
		rest, ok := strings.CutPrefix(s, label)
		if !ok {
			continue
		}
		if strings.HasPrefix(rest, ":") || strings.HasPrefix(rest, "：") {
			return label, true
		}
	}
	return "", false
}

// splitRunes splits s after its first n runes.
func splitRunes(s string, n int) (head, rest string) {
	i := 0
	for n > 0 && i < len(s) {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		n--
	}
	return s[:i], s[i:]
}

// letterTokens splits text into runs of letters.
func letterTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
}
