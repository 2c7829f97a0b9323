// Package app wires the chartvox subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the engine, opens the
// archive and sinks and mounts the HTTP routes, Run serves until the context
// is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithRecorder,
// WithRecognizer, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/chartvox/internal/archive"
	"github.com/MrWong99/chartvox/internal/config"
	"github.com/MrWong99/chartvox/internal/dialogue"
	"github.com/MrWong99/chartvox/internal/gateway"
	"github.com/MrWong99/chartvox/internal/health"
	"github.com/MrWong99/chartvox/internal/observe"
	"github.com/MrWong99/chartvox/internal/resilience"
	"github.com/MrWong99/chartvox/internal/sink"
	"github.com/MrWong99/chartvox/pkg/recognizer"
	"github.com/MrWong99/chartvox/pkg/types"
)

// FeedSessionID is the session ID of the server-side recognition feed.
const FeedSessionID = "feed"

const (
	readHeaderTimeout = 10 * time.Second
	maxFeedBackoff    = 30 * time.Second
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	levelVar *slog.LevelVar
	metrics  *observe.Metrics
	registry *config.Registry

	sessions   *SessionManager
	recorder   dialogue.Recorder
	jsonl      *sink.JSONL
	recognizer recognizer.Provider
	health     *health.Handler

	metricsHandler http.Handler
	handler        http.Handler
	srv            *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRegistry sets the recognizer registry. Default: [config.DefaultRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithRecorder injects a turn recorder instead of opening the PostgreSQL
// archive from config.
func WithRecorder(r dialogue.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithRecognizer injects the feed recognizer instead of building the
// provider chain from config.
func WithRecognizer(p recognizer.Provider) Option {
	return func(a *App) { a.recognizer = p }
}

// WithMetricsHandler sets the handler mounted on the metrics path.
// Default: [observe.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel hands the app the level variable of the process logger so
// that config reloads can change it.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// New creates an App by wiring all subsystems together. New performs all
// initialisation synchronously; on error every resource opened so far is
// released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.metricsHandler == nil {
		a.metricsHandler = observe.Handler()
	}
	if a.registry == nil {
		a.registry = config.DefaultRegistry()
	}
	a.health = health.New()

	defer func() {
		if err != nil {
			a.runClosers()
		}
	}()

	// ── 1. Engine ────────────────────────────────────────────────────────
	engine, err := NewEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	a.health.Add(health.Checker{
		Name: "lexicon",
		Check: func(context.Context) error {
			if len(a.sessions.Engine().Lexicon().Entries()) == 0 {
				return errors.New("lexicon is empty")
			}
			return nil
		},
	})

	// ── 2. Archive ───────────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 3. Shared sink ───────────────────────────────────────────────────
	var shared sink.Sink
	if cfg.Sink.JSONLPath != "" {
		a.jsonl = sink.NewJSONL(cfg.Sink.JSONLPath)
		shared = a.jsonl
	}

	// ── 4. Sessions ──────────────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Engine:      engine,
		MaxSessions: cfg.Server.MaxSessions,
		Sink:        shared,
		Recorder:    a.recorder,
		Metrics:     a.metrics,
	})

	// ── 5. Recognizer feed ───────────────────────────────────────────────
	if err := a.initRecognizer(); err != nil {
		return nil, fmt.Errorf("app: init recognizer: %w", err)
	}

	// ── 6. HTTP ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	a.health.Register(mux)
	gateway.New(a.sessions,
		gateway.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		gateway.WithHeadings(func() sink.Headings { return a.sessions.Engine().Headings() }),
	).Register(mux)
	mux.Handle("GET "+cfg.Telemetry.MetricsPath, a.metricsHandler)
	a.handler = observe.Middleware(a.metrics)(mux)

	a.srv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	return a, nil
}

// initArchive opens the PostgreSQL archive unless a recorder was injected
// or no DSN is configured.
func (a *App) initArchive(ctx context.Context) error {
	if a.recorder != nil || a.cfg.Archive.PostgresDSN == "" {
		return nil
	}
	store, err := archive.Open(ctx, a.cfg.Archive.PostgresDSN,
		archive.WithBreaker(resilience.NewCircuitBreaker(a.cfg.Archive.CircuitBreaker)),
		archive.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.recorder = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.health.Add(health.Checker{Name: "archive", Check: store.Ping})
	return nil
}

// initRecognizer builds the fallback chain of configured recognizers unless
// one was injected.
func (a *App) initRecognizer() error {
	if a.recognizer != nil {
		return nil
	}
	entries := a.cfg.Recognizer.Providers
	if len(entries) == 0 {
		return nil
	}
	fcfg := resilience.FallbackConfig{CircuitBreaker: a.cfg.Recognizer.CircuitBreaker}

	var chain *resilience.RecognizerFallback
	for i, e := range entries {
		p, err := a.registry.Create(e)
		if err != nil {
			return fmt.Errorf("recognizer.providers[%d]: %w", i, err)
		}
		if chain == nil {
			chain = resilience.NewRecognizerFallback(p, e.Name, fcfg)
		} else {
			chain.AddFallback(e.Name, p)
		}
	}
	a.recognizer = chain
	slog.Info("recognizer feed configured", "providers", chain.Names())
	return nil
}

// Handler returns the root HTTP handler, including middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the live session registry.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Run serves HTTP and, when a recognizer is configured, the server-side
// feed. It blocks until ctx is cancelled or the listener fails, and returns
// nil on a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), readHeaderTimeout)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})
	if a.recognizer != nil {
		g.Go(func() error { return a.runFeed(gctx) })
	}

	slog.Info("app running", "recognizer_feed", a.recognizer != nil)
	return g.Wait()
}

// runFeed keeps one session attached to the configured recognizer. The
// session's form is restored from the commit log first. When a stream ends
// or fails to open the feed reopens it, starting at the retry interval and
// doubling up to maxFeedBackoff while opens keep failing. Without a retry
// interval runFeed returns after the first stream.
func (a *App) runFeed(ctx context.Context) error {
	sess, err := a.sessions.Start(ctx, dialogue.WithID(FeedSessionID))
	if err != nil {
		return fmt.Errorf("app: start feed session: %w", err)
	}
	defer func() { _ = a.sessions.Stop(context.WithoutCancel(ctx), sess.ID()) }()

	if a.jsonl != nil {
		a.restoreFeedForm(ctx, sess.ID())
	}

	engine := a.sessions.Engine()
	rcfg := recognizer.Config{
		Language: string(engine.Language()),
		Hints:    a.cfg.Recognizer.Hints,
	}
	if len(rcfg.Hints) == 0 {
		rcfg.Hints = engine.Lexicon().Terms()
	}
	retry := a.cfg.Recognizer.RetryInterval
	backoff := retry
	for attempt := 1; ; attempt++ {
		opened, err := a.feedOnce(ctx, sess, rcfg)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err != nil:
			slog.Warn("recognizer feed failed", "attempt", attempt, "err", err)
		default:
			slog.Info("recognizer stream ended")
		}
		if retry <= 0 {
			return nil
		}
		if opened {
			attempt = 0
			backoff = retry
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if !opened {
			backoff = min(backoff*2, max(maxFeedBackoff, retry))
		}
	}
}

// restoreFeedForm replays the feed's earlier commits from the commit log
// into its form.
func (a *App) restoreFeedForm(ctx context.Context, id string) {
	_, form, ok := a.sessions.Get(id)
	if !ok {
		return
	}
	restore := sink.Func(func(_ context.Context, c types.Commit) error {
		if c.SessionID == id {
			form.Append(c.Category, c.Text)
		}
		return nil
	})
	n, err := sink.Replay(ctx, a.jsonl.Path(), restore)
	if err != nil {
		slog.Warn("restore feed form failed", "path", a.jsonl.Path(), "replayed", n, "err", err)
		return
	}
	slog.Debug("feed form restored", "path", a.jsonl.Path(), "fields", form.Len())
}

// feedOnce opens one stream and runs the session on it until the stream
// ends. opened reports whether the open succeeded.
func (a *App) feedOnce(ctx context.Context, sess *dialogue.Session, rcfg recognizer.Config) (opened bool, err error) {
	stream, err := a.recognizer.Open(ctx, rcfg)
	if err != nil {
		a.metrics.RecordRecognizerRequest(ctx, "feed", "error")
		return false, err
	}
	a.metrics.RecordRecognizerRequest(ctx, "feed", "ok")
	defer stream.Close()
	return true, sess.Run(ctx, recognizer.Finals(ctx, stream))
}

// Reload applies a changed config. It is the callback of [config.Watcher].
// Log level and engine settings apply immediately; the engine only to new
// sessions. Everything else is logged as requiring a restart.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EngineChanged {
		engine, err := NewEngine(new.Engine)
		if err != nil {
			slog.Error("engine reload failed, keeping the previous engine", "err", err)
		} else {
			a.sessions.SetEngine(engine)
			slog.Info("engine reloaded", "language", engine.Language())
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "settings", d.RestartRequired)
	}
}

// Shutdown stops every session and the HTTP server, then runs the closers
// in order. It returns ctx.Err() if the deadline passes first. Calling it
// more than once is safe.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Len(), "closers", len(a.closers))

		a.sessions.StopAll(ctx)
		if err := a.srv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers() {
	for _, closer := range a.closers {
		_ = closer()
	}
	a.closers = nil
}
