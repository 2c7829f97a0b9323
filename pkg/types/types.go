// Package types defines the shared types used across all chartvox packages.
//
// These types form the lingua franca between the recognizer adapters, the
// classifiers, the dialogue session and the sinks. Each package defines its own
// domain types; cross-cutting data structures live here to avoid circular imports.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownField is returned by [ParseFieldID] when a field identifier does
// not belong to any [Category].
var ErrUnknownField = errors.New("unknown clinical field id")

// Category is one section of the clinical note. The declaration order of the
// classifiable categories is significant: it is the tie-break order used by the
// lexicon when two categories score the same.
type Category int

const (
	// Unclassified is the zero value. It is never the target of a commit made
	// by the classifier fallback chain unless no default field exists.
	Unclassified Category = iota
	ChiefComplaint
	PresentIllness
	AccompaniedSymptoms
	PastMedicalHistory
	Medications
	Allergies
	FamilyHistory
	SocialHistory
	PhysicalExam
	VitalSigns
	LabResults
	ImagingResults
	Assessment
	Plan

	numCategories
)

// fieldIDs is the external field-ID table. The strings are consumed verbatim by
// existing form front-ends and must not drift.
var fieldIDs = [numCategories]string{
	Unclassified:        "unclassified",
	ChiefComplaint:      "chief_complaint",
	PresentIllness:      "history_present_illness",
	AccompaniedSymptoms: "accompanied_symptoms",
	PastMedicalHistory:  "past_medical_history",
	Medications:         "medications",
	Allergies:           "allergies",
	FamilyHistory:       "family_history",
	SocialHistory:       "social_history",
	PhysicalExam:        "physical_examination",
	VitalSigns:          "vital_signs",
	LabResults:          "laboratory_results",
	ImagingResults:      "imaging_results",
	Assessment:          "assessment",
	Plan:                "plan",
}

var categoryNames = [numCategories]string{
	Unclassified:        "Unclassified",
	ChiefComplaint:      "ChiefComplaint",
	PresentIllness:      "PresentIllness",
	AccompaniedSymptoms: "AccompaniedSymptoms",
	PastMedicalHistory:  "PastMedicalHistory",
	Medications:         "Medications",
	Allergies:           "Allergies",
	FamilyHistory:       "FamilyHistory",
	SocialHistory:       "SocialHistory",
	PhysicalExam:        "PhysicalExam",
	VitalSigns:          "VitalSigns",
	LabResults:          "LabResults",
	ImagingResults:      "ImagingResults",
	Assessment:          "Assessment",
	Plan:                "Plan",
}

// byFieldID is the reverse of fieldIDs, built once at package init.
var byFieldID = func() map[string]Category {
	m := make(map[string]Category, numCategories)
	for c := Unclassified; c < numCategories; c++ {
		m[fieldIDs[c]] = c
	}
	return m
}()

// Categories returns every classifiable category in declaration order.
// [Unclassified] is not included.
func Categories() []Category {
	out := make([]Category, 0, numCategories-1)
	for c := ChiefComplaint; c < numCategories; c++ {
		out = append(out, c)
	}
	return out
}

// IsValid reports whether c is a declared category (including [Unclassified]).
func (c Category) IsValid() bool {
	return c >= Unclassified && c < numCategories
}

// IsClassified reports whether c is a real clinical section.
func (c Category) IsClassified() bool {
	return c > Unclassified && c < numCategories
}

// String returns the Go-style name of the category, e.g. "PastMedicalHistory".
func (c Category) String() string {
	if !c.IsValid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// FieldID returns the external form field identifier, e.g. "past_medical_history".
// Invalid categories map to the empty string.
func (c Category) FieldID() string {
	if !c.IsValid() {
		return ""
	}
	return fieldIDs[c]
}

// ParseFieldID maps an external field identifier back to its [Category].
// Matching is exact: no case folding or trimming is applied.
func ParseFieldID(id string) (Category, error) {
	c, ok := byFieldID[id]
	if !ok {
		return Unclassified, fmt.Errorf("types: %w: %q", ErrUnknownField, id)
	}
	return c, nil
}

// MarshalText implements [encoding.TextMarshaler] using the field ID.
func (c Category) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("types: cannot marshal invalid category %d", int(c))
	}
	return []byte(fieldIDs[c]), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler] using the field ID.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldID(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ValidateFieldMapping checks that the category ↔ field-ID table is a
// bijection. It is called by lexicon loaders so that a broken mapping is a
// load-time error instead of a silent runtime no-op.
func ValidateFieldMapping() error {
	var errs []error
	seen := make(map[string]Category, numCategories)
	for c := Unclassified; c < numCategories; c++ {
		id := fieldIDs[c]
		if id == "" {
			errs = append(errs, fmt.Errorf("category %s has no field id", categoryNames[c]))
			continue
		}
		if prev, dup := seen[id]; dup {
			errs = append(errs, fmt.Errorf("field id %q is shared by %s and %s", id, prev, c))
			continue
		}
		seen[id] = c
		if back, ok := byFieldID[id]; !ok || back != c {
			errs = append(errs, fmt.Errorf("field id %q does not map back to %s", id, c))
		}
	}
	return errors.Join(errs...)
}

// Speaker labels who produced an utterance.
type Speaker int

const (
	// Unknown is the zero value: no label yet, or automatic detection.
	Unknown Speaker = iota
	Clinician
	Patient
)

// String returns the lower-case wire name of the speaker.
func (s Speaker) String() string {
	switch s {
	case Clinician:
		return "clinician"
	case Patient:
		return "patient"
	default:
		return "unknown"
	}
}

// ParseSpeaker parses a speaker name. "doctor" is accepted as an alias of
// "clinician" for compatibility with older front-ends.
func ParseSpeaker(s string) (Speaker, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clinician", "doctor":
		return Clinician, nil
	case "patient":
		return Patient, nil
	case "unknown", "", "auto":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("types: unknown speaker %q", s)
}

// MarshalText implements [encoding.TextMarshaler].
func (s Speaker) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Speaker) UnmarshalText(b []byte) error {
	parsed, err := ParseSpeaker(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Utterance is one unit of recognized speech as delivered by the recognizer.
// It is immutable once created.
type Utterance struct {
	// Text is the recognized content.
	Text string

	// Timestamp is when the recognizer produced the result.
	Timestamp time.Time

	// IsFinal marks authoritative results. Interim results never change core state.
	IsFinal bool
}

// Commit is the output event of the engine: text assigned to one clinical field.
type Commit struct {
	// SessionID identifies the dialogue session that produced the commit.
	SessionID string `json:"session_id"`

	// Category is the target clinical section.
	Category Category `json:"category"`

	// Text is the fragment to append to the field.
	Text string `json:"text"`

	// Timestamp is the timestamp of the originating utterance.
	Timestamp time.Time `json:"timestamp"`
}
