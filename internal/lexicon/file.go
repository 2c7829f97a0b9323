package lexicon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/chartvox/pkg/types"
)

// FileMode selects how a lexicon file combines with the built-in profile.
type FileMode string

const (
	// ModeExtend adds the file's terms to the built-in profile of the file's
	// language. This is the default.
	ModeExtend FileMode = "extend"

	// ModeReplace uses only the file's tables; every category must be present.
	ModeReplace FileMode = "replace"
)

// File is the YAML representation of a lexicon.
//
// Example:
//
//	language: zh-TW
//	mode: extend
//	categories:
//	  medications:
//	    keywords: [阿斯匹靈, 保栓通]
//	  allergies:
//	    sub_lists:
//	      allergens: [盤尼西林, 海鮮]
type File struct {
	Language   Language         `yaml:"language"`
	Mode       FileMode         `yaml:"mode"`
	Categories map[string]Entry `yaml:"categories"`
}

// LoadFile reads a lexicon YAML file from disk and builds a [Lexicon] from it.
func LoadFile(path string, opts ...Option) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: open %q: %w", path, err)
	}
	defer f.Close()

	l, err := LoadFromReader(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("lexicon: parse %q: %w", path, err)
	}
	return l, nil
}

// LoadFromReader decodes a lexicon [File] from r and builds a [Lexicon].
// Unknown YAML keys and unknown field IDs are errors.
func LoadFromReader(r io.Reader, opts ...Option) (*Lexicon, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("lexicon: decode yaml: %w", err)
	}
	return f.Build(opts...)
}

// Build turns the file into a [Lexicon].
func (f *File) Build(opts ...Option) (*Lexicon, error) {
	lang := f.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	mode := f.Mode
	if mode == "" {
		mode = ModeExtend
	}

	var base []Entry
	switch mode {
	case ModeExtend:
		build, ok := builtins[lang]
		if !ok {
			return nil, fmt.Errorf("%w: %q (mode extend needs a built-in profile)", ErrUnknownLanguage, lang)
		}
		base = build()
	case ModeReplace:
	default:
		return nil, fmt.Errorf("lexicon: mode %q is invalid; valid values: extend, replace", mode)
	}

	var errs []error
	ids := make([]string, 0, len(f.Categories))
	for id := range f.Categories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		c, err := types.ParseFieldID(id)
		if err != nil || !c.IsClassified() {
			errs = append(errs, fmt.Errorf("categories.%s: not a clinical field id", id))
			continue
		}
		add := f.Categories[id]
		add.Category = c
		base = merge(base, add)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	l, err := New(base, opts...)
	if err != nil {
		return nil, err
	}
	if mode == ModeExtend {
		l.lang = lang
	}
	return l, nil
}

// merge folds add into the entry of the same category, appending a new entry
// when none exists yet.
func merge(entries []Entry, add Entry) []Entry {
	for i := range entries {
		if entries[i].Category != add.Category {
			continue
		}
		e := &entries[i]
		e.NameAliases = append(e.NameAliases, add.NameAliases...)
		e.Keywords = append(e.Keywords, add.Keywords...)
		if len(add.SubLists) > 0 && e.SubLists == nil {
			e.SubLists = make(map[string][]string, len(add.SubLists))
		}
		for name, terms := range add.SubLists {
			e.SubLists[name] = append(e.SubLists[name], terms...)
		}
		return entries
	}
	return append(entries, add)
}
