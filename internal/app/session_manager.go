package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/chartvox/internal/dialogue"
	"github.com/MrWong99/chartvox/internal/observe"
	"github.com/MrWong99/chartvox/internal/sink"
)

var (
	// ErrSessionNotFound is returned when no live session has the given ID.
	ErrSessionNotFound = errors.New("app: session not found")

	// ErrTooManySessions is returned by [SessionManager.Start] when the
	// configured session limit is reached.
	ErrTooManySessions = errors.New("app: too many sessions")
)

type liveSession struct {
	session *dialogue.Session
	form    *sink.Form
	onStop  []func()
}

// SessionManager is the registry of live dialogue sessions. Every session
// gets its own [sink.Form]; commits also go to the shared sink, and turns to
// the shared recorder, when those are configured.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	engine   *Engine
	sessions map[string]*liveSession

	max      int
	shared   sink.Sink
	recorder dialogue.Recorder
	metrics  *observe.Metrics
	log      *slog.Logger
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Engine *Engine

	// MaxSessions caps live sessions. 0 means no limit.
	MaxSessions int

	// Sink receives every commit of every session. Optional.
	Sink sink.Sink

	// Recorder archives every turn of every session. Optional.
	Recorder dialogue.Recorder

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		engine:   cfg.Engine,
		sessions: make(map[string]*liveSession),
		max:      cfg.MaxSessions,
		shared:   cfg.Sink,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		log:      log,
	}
}

// Engine returns the engine new sessions are built from.
func (sm *SessionManager) Engine() *Engine {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.engine
}

// SetEngine replaces the engine for sessions started from now on. Running
// sessions keep theirs.
func (sm *SessionManager) SetEngine(e *Engine) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.engine = e
}

// Start creates a listening session registered under a new random ID.
// opts are applied after the manager's own options.
func (sm *SessionManager) Start(ctx context.Context, opts ...dialogue.Option) (*dialogue.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.max > 0 && len(sm.sessions) >= sm.max {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManySessions, sm.max)
	}

	id := uuid.NewString()
	form := sink.NewForm()
	var out sink.Sink = form
	if sm.shared != nil {
		out = sink.Multi(form, sm.shared)
	}

	base := []dialogue.Option{
		dialogue.WithID(id),
		dialogue.WithSink(out),
		dialogue.WithLogger(observe.Logger(ctx)),
	}
	if sm.recorder != nil {
		base = append(base, dialogue.WithRecorder(sm.recorder))
	}
	if sm.metrics != nil {
		base = append(base, dialogue.WithMetrics(sm.metrics))
	}
	s := sm.engine.NewSession(append(base, opts...)...)
	s.Start()

	sm.sessions[s.ID()] = &liveSession{session: s, form: form}
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(ctx, 1)
	}
	sm.log.Info("session started",
		"session_id", s.ID(),
		"language", sm.engine.Language(),
		"active", len(sm.sessions),
	)
	return s, nil
}

// Stop stops the session with the given ID and removes it from the
// registry. Returns [ErrSessionNotFound] if there is none.
func (sm *SessionManager) Stop(ctx context.Context, id string) error {
	sm.mu.Lock()
	ls, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	active := len(sm.sessions)
	sm.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	ls.session.Stop()
	for _, fn := range ls.onStop {
		fn()
	}
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(ctx, -1)
	}
	st := ls.session.Stats()
	sm.log.Info("session stopped",
		"session_id", id,
		"turns", st.Turns,
		"commits", st.Commits,
		"duplicates", st.Duplicates,
		"active", active,
	)
	return nil
}

// OnStop registers fn to run when the session with the given ID is stopped,
// e.g. to close the connection that feeds it. It reports false, without
// calling fn, when the session is not live.
func (sm *SessionManager) OnStop(id string, fn func()) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ls, ok := sm.sessions[id]
	if !ok {
		return false
	}
	ls.onStop = append(ls.onStop, fn)
	return true
}

// StopAll stops every live session.
func (sm *SessionManager) StopAll(ctx context.Context) {
	sm.mu.Lock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, id := range ids {
		// A concurrent Stop may have won; that is fine.
		_ = sm.Stop(ctx, id)
	}
}

// Get returns the live session with the given ID and its form.
func (sm *SessionManager) Get(id string) (*dialogue.Session, *sink.Form, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ls, ok := sm.sessions[id]
	if !ok {
		return nil, nil, false
	}
	return ls.session, ls.form, true
}

// List returns a snapshot of every live session, ordered by ID.
func (sm *SessionManager) List() []dialogue.Snapshot {
	sm.mu.Lock()
	sessions := make([]*dialogue.Session, 0, len(sm.sessions))
	for _, ls := range sm.sessions {
		sessions = append(sessions, ls.session)
	}
	sm.mu.Unlock()

	out := make([]dialogue.Snapshot, len(sessions))
	for i, s := range sessions {
		out[i] = s.Snapshot()
	}
	slices.SortFunc(out, func(a, b dialogue.Snapshot) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of live sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}
