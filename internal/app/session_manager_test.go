package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/chartvox/internal/app"
	"github.com/MrWong99/chartvox/internal/config"
	"github.com/MrWong99/chartvox/internal/dialogue"
	"github.com/MrWong99/chartvox/internal/observe"
	"github.com/MrWong99/chartvox/internal/sink"
	"github.com/MrWong99/chartvox/pkg/types"
)

// turnRecorder is an in-memory dialogue.Recorder.
type turnRecorder struct {
	mu    sync.Mutex
	turns map[string][]dialogue.Turn
}

func (r *turnRecorder) RecordTurn(_ context.Context, sessionID string, t dialogue.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turns == nil {
		r.turns = make(map[string][]dialogue.Turn)
	}
	r.turns[sessionID] = append(r.turns[sessionID], t)
	return nil
}

func (r *turnRecorder) count(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns[sessionID])
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testEngine(t *testing.T) *app.Engine {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	e, err := app.NewEngine(cfg.Engine)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func newTestSessionManager(t *testing.T, cfg app.SessionManagerConfig) *app.SessionManager {
	t.Helper()
	if cfg.Engine == nil {
		cfg.Engine = testEngine(t)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = testMetrics(t)
	}
	return app.NewSessionManager(cfg)
}

func say(t *testing.T, s *dialogue.Session, text string) {
	t.Helper()
	u := types.Utterance{Text: text, Timestamp: time.Now(), IsFinal: true}
	if _, err := s.Handle(context.Background(), u); err != nil {
		t.Fatalf("Handle(%q): %v", text, err)
	}
}

func TestSessionManager_StartStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := newTestSessionManager(t, app.SessionManagerConfig{})

	s, err := sm.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if s.ID() == "" {
		t.Fatal("session ID should not be empty")
	}
	if s.State() != dialogue.Listening {
		t.Errorf("state = %v, want listening", s.State())
	}
	if sm.Len() != 1 {
		t.Errorf("Len = %d, want 1", sm.Len())
	}
	got, form, ok := sm.Get(s.ID())
	if !ok || got != s || form == nil {
		t.Fatalf("Get(%q) = %v, %v, %v", s.ID(), got, form, ok)
	}

	if err := sm.Stop(ctx, s.ID()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if s.State() != dialogue.Idle {
		t.Errorf("state after Stop = %v, want idle", s.State())
	}
	if sm.Len() != 0 {
		t.Errorf("Len after Stop = %d, want 0", sm.Len())
	}
	if err := sm.Stop(ctx, s.ID()); !errors.Is(err, app.ErrSessionNotFound) {
		t.Errorf("second Stop error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManager_OnStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := newTestSessionManager(t, app.SessionManagerConfig{})

	s, err := sm.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	var calls int
	if !sm.OnStop(s.ID(), func() { calls++ }) {
		t.Fatal("OnStop on a live session reported false")
	}
	if calls != 0 {
		t.Fatalf("hook ran %d times before Stop", calls)
	}

	if err := sm.Stop(ctx, s.ID()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if calls != 1 {
		t.Errorf("hook ran %d times after Stop, want 1", calls)
	}
	if sm.OnStop(s.ID(), func() { calls++ }) {
		t.Error("OnStop on a stopped session reported true")
	}
	if calls != 1 {
		t.Error("hook for a stopped session ran")
	}
}

func TestSessionManager_MaxSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := newTestSessionManager(t, app.SessionManagerConfig{MaxSessions: 1})

	s, err := sm.Start(ctx)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := sm.Start(ctx); !errors.Is(err, app.ErrTooManySessions) {
		t.Fatalf("second Start error = %v, want ErrTooManySessions", err)
	}
	if err := sm.Stop(ctx, s.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Start(ctx); err != nil {
		t.Errorf("Start after Stop: %v", err)
	}
}

func TestSessionManager_IDOverride(t *testing.T) {
	t.Parallel()
	sm := newTestSessionManager(t, app.SessionManagerConfig{})

	s, err := sm.Start(context.Background(), dialogue.WithID("bed-12"))
	if err != nil {
		t.Fatal(err)
	}
	if s.ID() != "bed-12" {
		t.Errorf("ID = %q, want bed-12", s.ID())
	}
	if _, _, ok := sm.Get("bed-12"); !ok {
		t.Error("session is not registered under the overridden ID")
	}
}

func TestSessionManager_CommitsReachFormSinkAndRecorder(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		shared []types.Commit
	)
	rec := &turnRecorder{}
	sm := newTestSessionManager(t, app.SessionManagerConfig{
		Sink: sink.Func(func(_ context.Context, c types.Commit) error {
			mu.Lock()
			defer mu.Unlock()
			shared = append(shared, c)
			return nil
		}),
		Recorder: rec,
	})

	s, err := sm.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	say(t, s, "服用什麼藥物?")
	say(t, s, "阿斯匹靈")

	_, form, _ := sm.Get(s.ID())
	if got := form.Text(types.Medications); got != "阿斯匹靈" {
		t.Errorf("form medications = %q, want 阿斯匹靈", got)
	}
	mu.Lock()
	if len(shared) != 1 || shared[0].SessionID != s.ID() || shared[0].Category != types.Medications {
		t.Errorf("shared sink got %+v", shared)
	}
	mu.Unlock()
	if n := rec.count(s.ID()); n != 2 {
		t.Errorf("recorded turns = %d, want 2", n)
	}
}

func TestSessionManager_FormsAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := newTestSessionManager(t, app.SessionManagerConfig{})

	a, _ := sm.Start(ctx)
	b, _ := sm.Start(ctx)
	say(t, a, "服用什麼藥物?")
	say(t, a, "阿斯匹靈")

	_, formB, _ := sm.Get(b.ID())
	if formB.Len() != 0 {
		t.Errorf("second session's form has %d fields, want 0", formB.Len())
	}
}

func TestSessionManager_ListSorted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := newTestSessionManager(t, app.SessionManagerConfig{})

	for _, id := range []string{"c", "a", "b"} {
		if _, err := sm.Start(ctx, dialogue.WithID(id)); err != nil {
			t.Fatal(err)
		}
	}
	list := sm.List()
	if len(list) != 3 {
		t.Fatalf("List len = %d, want 3", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].ID != want {
			t.Errorf("List[%d].ID = %q, want %q", i, list[i].ID, want)
		}
		if list[i].State != dialogue.Listening {
			t.Errorf("List[%d].State = %v, want listening", i, list[i].State)
		}
	}
}

func TestSessionManager_SetEngine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := newTestSessionManager(t, app.SessionManagerConfig{})

	old, _ := sm.Start(ctx)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Engine.Language = "en-US"
	en, err := app.NewEngine(cfg.Engine)
	if err != nil {
		t.Fatal(err)
	}
	sm.SetEngine(en)
	if sm.Engine() != en {
		t.Fatal("Engine() did not return the new engine")
	}

	fresh, _ := sm.Start(ctx)
	say(t, fresh, "I am taking metformin daily")
	say(t, old, "I am taking metformin daily")

	_, freshForm, _ := sm.Get(fresh.ID())
	_, oldForm, _ := sm.Get(old.ID())
	if freshForm.Text(types.Medications) == "" {
		t.Error("new session did not use the en-US engine")
	}
	if oldForm.Text(types.Medications) != "" {
		t.Error("running session switched engines")
	}
}

func TestSessionManager_StopAllConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sm := newTestSessionManager(t, app.SessionManagerConfig{})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sm.Start(ctx); err != nil {
				t.Errorf("Start: %v", err)
			}
			_ = sm.List()
		}()
	}
	wg.Wait()
	if sm.Len() != 20 {
		t.Fatalf("Len = %d, want 20", sm.Len())
	}

	wg.Add(2)
	go func() { defer wg.Done(); sm.StopAll(ctx) }()
	go func() { defer wg.Done(); sm.StopAll(ctx) }()
	wg.Wait()
	if sm.Len() != 0 {
		t.Errorf("Len after StopAll = %d, want 0", sm.Len())
	}
}
