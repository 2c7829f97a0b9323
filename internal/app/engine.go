package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/chartvox/internal/classify"
	"github.com/MrWong99/chartvox/internal/config"
	"github.com/MrWong99/chartvox/internal/dialogue"
	"github.com/MrWong99/chartvox/internal/lexicon"
	"github.com/MrWong99/chartvox/internal/phonetic"
	"github.com/MrWong99/chartvox/internal/sink"
	"github.com/MrWong99/chartvox/internal/speaker"
)

// transcriptLabels are the speaker names used in rendered transcripts.
var transcriptLabels = map[lexicon.Language][2]string{
	lexicon.LangZhTW: {"醫生", "病人"},
	lexicon.LangZhCN: {"医生", "病人"},
	lexicon.LangEnUS: {"Clinician", "Patient"},
}

// Engine bundles the read-only classifiers built from one
// [config.EngineConfig]. Sessions built from the same Engine share them.
type Engine struct {
	cfg      config.EngineConfig
	lang     lexicon.Language
	lex      *lexicon.Lexicon
	speakers *speaker.Classifier
	fields   *classify.Classifier
}

// NewEngine loads the lexicon and builds the speaker and category
// classifiers described by cfg.
func NewEngine(cfg config.EngineConfig) (*Engine, error) {
	var lexOpts []lexicon.Option
	if cfg.Fuzzy {
		lexOpts = append(lexOpts, lexicon.WithFuzzy(phonetic.New(), phonetic.Eligible))
	}

	var (
		lex *lexicon.Lexicon
		err error
	)
	if cfg.LexiconFile != "" {
		lex, err = lexicon.LoadFile(cfg.LexiconFile, lexOpts...)
	} else {
		lex, err = lexicon.Load(cfg.Language, lexOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("app: load lexicon: %w", err)
	}

	lang := lex.Language()
	if lang == "" {
		lang = cfg.Language
	}
	patterns, err := speaker.PatternsFor(lang)
	if err != nil {
		slog.Warn("no speaker patterns for language, using default",
			"language", lang,
			"default", lexicon.DefaultLanguage,
		)
		patterns, _ = speaker.PatternsFor(lexicon.DefaultLanguage)
	}

	weights := cfg.Speaker
	if weights == (speaker.Weights{}) {
		weights = speaker.DefaultWeights()
	}

	return &Engine{
		cfg:      cfg,
		lang:     lang,
		lex:      lex,
		speakers: speaker.New(patterns, speaker.WithWeights(weights)),
		fields: classify.New(lex,
			classify.WithMinScore(cfg.MinScore),
			classify.WithShortRunes(cfg.ShortRunes),
			classify.WithSplitRunes(cfg.SplitRunes),
		),
	}, nil
}

// Language returns the language of the loaded lexicon.
func (e *Engine) Language() lexicon.Language { return e.lang }

// Lexicon returns the shared lexicon.
func (e *Engine) Lexicon() *lexicon.Lexicon { return e.lex }

// TranscriptLabels returns the clinician and patient names used in rendered
// transcripts, or empty strings when the language has none.
func (e *Engine) TranscriptLabels() (clinician, patient string) {
	l := transcriptLabels[e.lang]
	return l[0], l[1]
}

// Headings returns the export headings for the engine's language.
func (e *Engine) Headings() sink.Headings { return sink.HeadingsFor(e.lang) }

// NewSession creates an Idle session using the engine's classifiers and
// pending-question bounds. opts are applied last.
func (e *Engine) NewSession(opts ...dialogue.Option) *dialogue.Session {
	base := make([]dialogue.Option, 0, 3+len(opts))
	if e.cfg.MaxPendingTurns != nil {
		base = append(base, dialogue.WithMaxPendingTurns(*e.cfg.MaxPendingTurns))
	}
	if e.cfg.PendingTTL != nil {
		base = append(base, dialogue.WithPendingTTL(*e.cfg.PendingTTL))
	}
	if c, p := e.TranscriptLabels(); c != "" {
		base = append(base, dialogue.WithTranscriptLabels(c, p))
	}
	return dialogue.New(e.speakers, e.fields, append(base, opts...)...)
}
