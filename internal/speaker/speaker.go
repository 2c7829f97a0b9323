// Package speaker labels each final utterance as spoken by the clinician or
// the patient.
//
// The label comes from two accumulated scores. Question marks, interrogative
// forms, clinical vocabulary and polite or imperative phrasing raise the
// clinician score; first-person phrasing and lay symptom words raise the
// patient score. The previous turn adds a small alternation bias.
//
// Under uncertainty the classifier answers [types.Patient]: losing a
// patient-reported symptom is worse than filing a question as an answer.
package speaker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/chartvox/pkg/types"
)

// Weights holds every tunable constant of the scoring scheme.
type Weights struct {
	QuestionMark     float64 `yaml:"question_mark"`
	Interrogative    float64 `yaml:"interrogative"`
	ProfessionalTerm float64 `yaml:"professional_term"`
	ClinicianPhrase  float64 `yaml:"clinician_phrase"`
	PatientPhrase    float64 `yaml:"patient_phrase"`
	SymptomTerm      float64 `yaml:"symptom_term"`
	Long             float64 `yaml:"long"`
	SecondPerson     float64 `yaml:"second_person"`
	FirstPerson      float64 `yaml:"first_person"`

	// AfterClinician is added to the patient score when the previous turn
	// was the clinician's; AfterPatient to the clinician score after a
	// patient turn.
	AfterClinician float64 `yaml:"after_clinician"`
	AfterPatient   float64 `yaml:"after_patient"`

	// Margin is how far the clinician score must lead to win.
	Margin float64 `yaml:"margin"`

	// LongRunes and LongWords bound a "long" utterance.
	LongRunes int `yaml:"long_runes"`
	LongWords int `yaml:"long_words"`
}

// DefaultWeights returns the stock weights.
func DefaultWeights() Weights {
	return Weights{
		QuestionMark:     5,
		Interrogative:    8,
		ProfessionalTerm: 3,
		ClinicianPhrase:  2,
		PatientPhrase:    2,
		SymptomTerm:      2.5,
		Long:             1,
		SecondPerson:     3,
		FirstPerson:      3,
		AfterClinician:   2,
		AfterPatient:     1.5,
		Margin:           2,
		LongRunes:        30,
		LongWords:        12,
	}
}

// Result is the outcome of one classification.
type Result struct {
	Speaker        types.Speaker
	ClinicianScore float64
	PatientScore   float64

	// Signals names every rule that fired, e.g. "question-mark",
	// "interrogative", "symptom:頭痛", "after-clinician".
	Signals []string
}

// Option configures a [Classifier].
type Option func(*Classifier)

// WithWeights replaces the default weights.
func WithWeights(w Weights) Option {
	return func(c *Classifier) { c.w = w }
}

// Classifier scores utterances against a [Patterns] set. It is read-only
// after construction and safe for concurrent use.
type Classifier struct {
	p *Patterns
	w Weights
}

// New returns a classifier for p. A nil p yields a classifier that relies on
// punctuation, length and turn bias only.
func New(p *Patterns, opts ...Option) *Classifier {
	if p == nil {
		p = &Patterns{}
	}
	c := &Classifier{p: p, w: DefaultWeights()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Weights returns the weights in use.
func (c *Classifier) Weights() Weights { return c.w }

// Label is [Classifier.Classify] reduced to the speaker.
func (c *Classifier) Label(text string, prev types.Speaker) types.Speaker {
	return c.Classify(text, prev).Speaker
}

// Classify scores text and decides who said it. prev is the label of the
// immediately preceding turn, or [types.Unknown] for the first turn.
func (c *Classifier) Classify(text string, prev types.Speaker) Result {
	var r Result
	lower := strings.ToLower(strings.TrimSpace(text))

	clin := func(w float64, signal string) {
		r.ClinicianScore += w
		r.Signals = append(r.Signals, signal)
	}
	pat := func(w float64, signal string) {
		r.PatientScore += w
		r.Signals = append(r.Signals, signal)
	}

	if strings.ContainsAny(lower, "?？") {
		clin(c.w.QuestionMark, "question-mark")
	}
	for _, re := range c.p.Interrogatives {
		if re.MatchString(lower) {
			clin(c.w.Interrogative, "interrogative")
			break
		}
	}
	for _, t := range c.p.ProfessionalTerms {
		if strings.Contains(lower, t) {
			clin(c.w.ProfessionalTerm, "term:"+t)
		}
	}
	for _, t := range c.p.ClinicianPhrases {
		if strings.Contains(lower, t) {
			clin(c.w.ClinicianPhrase, "clinician-phrase:"+t)
		}
	}
	for _, t := range c.p.PatientPhrases {
		if strings.Contains(lower, t) {
			pat(c.w.PatientPhrase, "patient-phrase:"+t)
		}
	}
	for _, t := range c.p.SymptomTerms {
		if strings.Contains(lower, t) {
			pat(c.w.SymptomTerm, "symptom:"+t)
		}
	}

	if (c.w.LongRunes > 0 && utf8.RuneCountInString(lower) > c.w.LongRunes) ||
		(c.w.LongWords > 0 && len(strings.Fields(lower)) > c.w.LongWords) {
		clin(c.w.Long, "long")
	}

	if p, ok := hasPrefix(lower, c.p.SecondPerson); ok {
		clin(c.w.SecondPerson, "second-person:"+p)
	}
	if p, ok := hasPrefix(lower, c.p.FirstPerson); ok {
		pat(c.w.FirstPerson, "first-person:"+p)
	}

	switch prev {
	case types.Clinician:
		pat(c.w.AfterClinician, "after-clinician")
	case types.Patient:
		clin(c.w.AfterPatient, "after-patient")
	}

	r.Speaker = types.Patient
	if r.ClinicianScore > r.PatientScore+c.w.Margin {
		r.Speaker = types.Clinician
	}
	// A near tie (clinician ahead by at most Margin) falls back to
	// alternation, which always lands on Patient: either the previous turn
	// was a question, or there is no reason to prefer the clinician.
	return r
}

// hasPrefix reports the first of prefixes that text starts with. Prefixes
// ending in an ASCII letter must be followed by a non-letter so that "i"
// does not match "it".
func hasPrefix(text string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		rest, ok := strings.CutPrefix(text, p)
		if !ok {
			continue
		}
		last, _ := utf8.DecodeLastRuneInString(p)
		if last <= unicode.MaxASCII && unicode.IsLetter(last) && rest != "" {
			next, _ := utf8.DecodeRuneInString(rest)
			if unicode.IsLetter(next) {
				continue
			}
		}
		return p, true
	}
	return "", false
}
