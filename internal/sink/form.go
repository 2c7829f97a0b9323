package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/chartvox/pkg/types"
)

// Separator is inserted between fragments of one field.
const Separator = "。"

// Form holds one text buffer per clinical field. Buffers only grow; a
// fragment already present in its buffer is not appended again, so
// replaying a commit is harmless.
type Form struct {
	mu     sync.RWMutex
	fields map[types.Category]string
}

var _ Sink = (*Form)(nil)

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{fields: make(map[types.Category]string)}
}

// Append adds text to the buffer of category and reports whether the buffer
// changed. Blank text and text already contained in the buffer are skipped.
func (f *Form) Append(category types.Category, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || !category.IsClassified() {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.fields[category]
	switch {
	case strings.Contains(cur, text):
		return false
	case cur == "":
		f.fields[category] = text
	case endsSentence(cur):
		f.fields[category] = cur + text
	default:
		f.fields[category] = cur + Separator + text
	}
	return true
}

// Commit implements [Sink].
func (f *Form) Commit(_ context.Context, c types.Commit) error {
	if !c.Category.IsClassified() {
		return fmt.Errorf("%w: %s", ErrInvalidCategory, c.Category)
	}
	f.Append(c.Category, c.Text)
	return nil
}

// Text returns the buffer of category.
func (f *Form) Text(category types.Category) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fields[category]
}

// Snapshot returns every field keyed by its field ID. Empty fields are
// included so that front-ends see the full form.
func (f *Form) Snapshot() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]string, len(f.fields))
	for _, c := range types.Categories() {
		out[c.FieldID()] = f.fields[c]
	}
	return out
}

// Len returns the number of non-empty fields.
func (f *Form) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, v := range f.fields {
		if v != "" {
			n++
		}
	}
	return n
}

// Reset empties every buffer. Dialogue sessions never call it; it exists for
// an explicit "new form" action by the user.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.fields)
}

func endsSentence(s string) bool {
	for _, suffix := range []string{"。", ".", "!", "?", "！", "？"} {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
