// Command chartvox is the main entry point for the chartvox dictation server.
//
// With -replay it instead runs a recorded transcript through the engine and
// prints the resulting form.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/chartvox/internal/app"
	"github.com/MrWong99/chartvox/internal/config"
	"github.com/MrWong99/chartvox/internal/dialogue"
	"github.com/MrWong99/chartvox/internal/lexicon"
	"github.com/MrWong99/chartvox/internal/observe"
	"github.com/MrWong99/chartvox/internal/sink"
	"github.com/MrWong99/chartvox/pkg/recognizer"
	"github.com/MrWong99/chartvox/pkg/recognizer/script"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "chartvox.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	replayPath := flag.String("replay", "", "replay a transcript file through the engine, print the form and exit")
	lang := flag.String("lang", "", "override engine.language, e.g. zh-TW, zh-CN or en-US")
	showTranscript := flag.Bool("transcript", false, "with -replay, also print the labelled transcript")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watch, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chartvox: %v\n", err)
		return 1
	}
	if *lang != "" {
		cfg.Engine.Language = lexicon.Language(*lang)
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "chartvox: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *replayPath != "" {
		if err := replay(ctx, cfg, *replayPath, *showTranscript); err != nil {
			slog.Error("replay failed", "err", err)
			return 1
		}
		return 0
	}

	slog.Info("chartvox starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Language:       string(cfg.Engine.Language),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg,
		app.WithLogLevel(level),
		app.WithMetricsHandler(telemetry.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if watch {
		w, err := config.NewWatcher(*configPath, application.Reload)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
			go reloadOnHangup(ctx, w)
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path. When path is the default and does not exist the
// built-in defaults are used and hot reload is off.
func loadConfig(path string) (cfg *config.Config, watch bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, os.ErrNotExist) && path == defaultConfigPath:
		cfg, err = config.LoadFromReader(strings.NewReader(""))
		return cfg, false, err
	case errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("config file %q not found", path)
	default:
		return nil, false, err
	}
}

// replay runs the transcript at path through a fresh session and prints the
// resulting form to stdout.
func replay(ctx context.Context, cfg *config.Config, path string, showTranscript bool) error {
	engine, err := app.NewEngine(cfg.Engine)
	if err != nil {
		return err
	}

	form := sink.NewForm()
	sess := engine.NewSession(dialogue.WithID("replay"), dialogue.WithSink(form))
	sess.Start()
	defer sess.Stop()

	clinician, patient := engine.TranscriptLabels()
	p := script.New(path, script.WithSpeakerLabels(clinician, patient))
	stream, err := p.Open(ctx, recognizer.Config{Language: string(engine.Language())})
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := sess.Run(ctx, recognizer.Finals(ctx, stream)); err != nil {
		return err
	}

	if showTranscript {
		fmt.Println(sess.Transcript())
		fmt.Println()
	}
	st := sess.Stats()
	slog.Info("replay complete", "turns", st.Turns, "commits", st.Commits, "duplicates", st.Duplicates)
	return form.Export(os.Stdout, engine.Headings(), time.Now())
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        chartvox, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Language", string(cfg.Engine.Language))
	printRow("Lexicon file", cfg.Engine.LexiconFile)
	for i, p := range cfg.Recognizer.Providers {
		label := "Recognizer"
		if i > 0 {
			label = "Fallback"
		}
		printRow(label, p.Name+" / "+string(p.Kind))
	}
	if len(cfg.Recognizer.Providers) == 0 {
		printRow("Recognizer", "(browser only)")
	}
	printRow("Archive", enabled(cfg.Archive.PostgresDSN != ""))
	printRow("Commit log", cfg.Sink.JSONLPath)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "(disabled)"
}

// reloadOnHangup rereads the watched config on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if d, err := w.Reload(); err == nil && d.Empty() {
				slog.Info("SIGHUP: configuration unchanged")
			}
		}
	}
}
