package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/chartvox/internal/speaker"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{Engine: EngineConfig{Speaker: speaker.DefaultWeights()}}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("server.max_sessions %d must not be negative", cfg.Server.MaxSessions))
	}

	// Engine
	eng := cfg.Engine
	if eng.Language != "" && !eng.Language.IsValid() && eng.LexiconFile == "" {
		errs = append(errs, fmt.Errorf("engine.language %q has no built-in profile; set engine.lexicon_file", eng.Language))
	}
	if eng.MinScore < 0 {
		errs = append(errs, fmt.Errorf("engine.min_score %.1f must not be negative", eng.MinScore))
	}
	if eng.ShortRunes < 0 {
		errs = append(errs, fmt.Errorf("engine.short_runes %d must not be negative", eng.ShortRunes))
	}
	if eng.SplitRunes < 0 {
		errs = append(errs, fmt.Errorf("engine.split_runes %d must not be negative", eng.SplitRunes))
	}
	if eng.MaxPendingTurns != nil && *eng.MaxPendingTurns < 0 {
		errs = append(errs, fmt.Errorf("engine.max_pending_turns %d must not be negative", *eng.MaxPendingTurns))
	}
	if eng.PendingTTL != nil && *eng.PendingTTL < 0 {
		errs = append(errs, fmt.Errorf("engine.pending_ttl %s must not be negative", *eng.PendingTTL))
	}
	if eng.Speaker.Margin < 0 {
		errs = append(errs, fmt.Errorf("engine.speaker.margin %.1f must not be negative", eng.Speaker.Margin))
	}

	// Recognizer providers
	if cfg.Recognizer.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf("recognizer.retry_interval %s must not be negative", cfg.Recognizer.RetryInterval))
	}
	names := make(map[string]int, len(cfg.Recognizer.Providers))
	for i, p := range cfg.Recognizer.Providers {
		prefix := fmt.Sprintf("recognizer.providers[%d]", i)
		if p.Name != "" {
			if prev, ok := names[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of recognizer.providers[%d]", prefix, p.Name, prev))
			}
			names[p.Name] = i
		}
		switch p.Kind {
		case RecognizerRelay:
			if p.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when kind is relay", prefix))
				break
			}
			u, err := url.Parse(p.URL)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.url: %w", prefix, err))
				break
			}
			switch u.Scheme {
			case "ws", "wss", "http", "https":
			default:
				errs = append(errs, fmt.Errorf("%s.url scheme %q is invalid; valid values: ws, wss, http, https", prefix, u.Scheme))
			}
		case RecognizerScript:
			if p.Path == "" {
				errs = append(errs, fmt.Errorf("%s.path is required when kind is script", prefix))
			}
		case "":
			errs = append(errs, fmt.Errorf("%s.kind is required", prefix))
		default:
			// Third-party kinds may be registered at runtime.
			slog.Warn("unknown recognizer kind, must be registered before startup",
				"index", i,
				"kind", p.Kind,
			)
		}
	}

	// Sink and archive
	if cfg.Sink.JSONLPath != "" && cfg.Sink.JSONLPath == cfg.Engine.LexiconFile {
		errs = append(errs, errors.New("sink.jsonl_path must not be the lexicon file"))
	}
	if cfg.Archive.PostgresDSN == "" {
		slog.Debug("archive.postgres_dsn is empty; transcripts will not be archived")
	}

	return errors.Join(errs...)
}
