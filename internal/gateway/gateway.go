// Package gateway is the browser-facing surface of chartvox.
//
// The clinician's page runs the platform speech recognizer and streams its
// results over a websocket to GET /v1/dictation. Each connection owns one
// dialogue session for its lifetime. The page sends recognizer events and
// control frames; the server answers with the turns, commits and session
// state they produce.
//
// Client frames are JSON text messages:
//
//	{"text":"頭痛","isFinal":true,"timestamp":"2026-10-15T09:00:05Z"}
//	{"type":"start"} {"type":"stop"} {"type":"clear"}
//	{"type":"speaker","value":"clinician"|"patient"|"auto"}
//	{"type":"target","value":"medications"|"auto"}
//
// Server frames carry a "type" of "state", "turn", "commit" or "error".
//
// The REST routes expose live sessions read-only, plus DELETE to end one,
// which also closes its dictation connection.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/chartvox/internal/dialogue"
	"github.com/MrWong99/chartvox/internal/sink"
	"github.com/MrWong99/chartvox/pkg/recognizer"
	"github.com/MrWong99/chartvox/pkg/types"
)

const (
	readLimit    = 64 << 10
	writeTimeout = 5 * time.Second
)

var errSessionStopped = errors.New("gateway: session stopped")

// Sessions is the registry the gateway opens sessions in.
type Sessions interface {
	Start(ctx context.Context, opts ...dialogue.Option) (*dialogue.Session, error)
	Stop(ctx context.Context, id string) error
	OnStop(id string, fn func()) bool
	Get(id string) (*dialogue.Session, *sink.Form, bool)
	List() []dialogue.Snapshot
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithOriginPatterns allows websocket upgrades from these origin host
// patterns in addition to the server's own host.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// WithHeadings sets the source of section headings for plain-text form
// exports. It is called per request so a reloaded language applies.
func WithHeadings(fn func() sink.Headings) Option {
	return func(s *Server) {
		if fn != nil {
			s.headings = fn
		}
	}
}

// WithClock sets the time stamped on exports.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server serves the dictation websocket and the session routes.
type Server struct {
	sessions Sessions
	log      *slog.Logger
	origins  []string
	headings func() sink.Headings
	now      func() time.Time
}

// New creates a Server backed by sessions.
func New(sessions Sessions, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		log:      slog.Default(),
		headings: func() sink.Headings { return sink.HeadingsFor("") },
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the gateway routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/dictation", s.handleDictation)
	mux.HandleFunc("GET /v1/sessions", s.handleList)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleStop)
	mux.HandleFunc("GET /v1/sessions/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /v1/sessions/{id}/form", s.handleForm)
	mux.HandleFunc("GET /v1/fields", s.handleFields)
}

// inbound is a client frame. Frames without a type, or with type "result",
// are recognizer events.
type inbound struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	recognizer.Event
}

// outbound is a server frame.
type outbound struct {
	Type   string             `json:"type"`
	State  *dialogue.Snapshot `json:"state,omitempty"`
	Turn   *turnFrame         `json:"turn,omitempty"`
	Commit *types.Commit      `json:"commit,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type turnFrame struct {
	Index     int             `json:"index"`
	Speaker   types.Speaker   `json:"speaker"`
	Manual    bool            `json:"manual,omitempty"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Category  *types.Category `json:"category,omitempty"`
	Seeded    types.Category  `json:"seeded"`
}

func newTurnFrame(t *dialogue.Turn) *turnFrame {
	return &turnFrame{
		Index:     t.Index,
		Speaker:   t.Speaker,
		Manual:    t.Manual,
		Text:      t.Utterance.Text,
		Timestamp: t.Utterance.Timestamp,
		Category:  t.Category,
		Seeded:    t.Seeded,
	}
}

func (s *Server) handleDictation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	sess, err := s.sessions.Start(ctx)
	if err != nil {
		s.log.Warn("gateway: cannot start session", "err", err)
		http.Error(w, "no session available", http.StatusServiceUnavailable)
		return
	}
	id := sess.ID()
	defer func() {
		if err := s.sessions.Stop(context.WithoutCancel(ctx), id); err != nil {
			s.log.Debug("gateway: session already stopped", "session_id", id)
		}
	}()
	// Stopping the session from elsewhere, e.g. DELETE /v1/sessions/{id},
	// ends the connection too.
	if !s.sessions.OnStop(id, func() { cancel(errSessionStopped) }) {
		http.Error(w, "session stopped", http.StatusGone)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.Warn("gateway: websocket accept failed", "session_id", id, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	log := s.log.With("session_id", id)
	log.Info("gateway: dictation connected", "remote", r.RemoteAddr)

	c := &client{conn: conn, session: sess, log: log}
	if err := c.sendState(ctx); err != nil {
		return
	}
	err = c.serve(ctx)
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info("gateway: dictation closed")
	case errors.Is(context.Cause(ctx), errSessionStopped):
		_ = conn.Close(websocket.StatusNormalClosure, "session stopped")
		log.Info("gateway: dictation closed, session stopped")
	case ctx.Err() != nil:
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		log.Info("gateway: dictation closed by server")
	default:
		log.Warn("gateway: dictation ended", "err", err)
	}
}

// client is one dictation connection. All methods run on the connection's
// request goroutine.
type client struct {
	conn    *websocket.Conn
	session *dialogue.Session
	log     *slog.Logger
}

// serve reads frames until the connection or ctx ends.
func (c *client) serve(ctx context.Context) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			if err := c.sendError(ctx, "binary frames are not supported"); err != nil {
				return err
			}
			continue
		}
		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			if err := c.sendError(ctx, "malformed frame: "+err.Error()); err != nil {
				return err
			}
			continue
		}
		if err := c.dispatch(ctx, in); err != nil {
			return err
		}
	}
}

// dispatch handles one frame. Only write failures are returned; bad frames
// are answered with an error frame.
func (c *client) dispatch(ctx context.Context, in inbound) error {
	switch in.Type {
	case "", "result":
		return c.handleEvent(ctx, in.Event)
	case "start":
		c.session.Start()
	case "stop":
		c.session.Stop()
	case "clear":
		c.session.Clear()
	case "speaker":
		sp, err := types.ParseSpeaker(in.Value)
		if err != nil {
			return c.sendError(ctx, err.Error())
		}
		c.session.SetSpeakerOverride(sp)
	case "target":
		target := types.Unclassified
		if v := strings.TrimSpace(in.Value); v != "" && v != "auto" {
			cat, err := types.ParseFieldID(v)
			if err != nil {
				return c.sendError(ctx, err.Error())
			}
			target = cat
		}
		if err := c.session.SetTarget(target); err != nil {
			return c.sendError(ctx, err.Error())
		}
	default:
		return c.sendError(ctx, "unknown frame type "+in.Type)
	}
	c.log.Debug("gateway: control frame", "type", in.Type, "value", in.Value)
	return c.sendState(ctx)
}

func (c *client) handleEvent(ctx context.Context, ev recognizer.Event) error {
	res, err := c.session.Handle(ctx, ev.Utterance())
	if err != nil {
		// The turn is recorded even when a sink failed.
		c.log.Warn("gateway: commit failed", "err", err)
		if err := c.sendError(ctx, "commit failed"); err != nil {
			return err
		}
	}
	if res.Turn == nil {
		return nil
	}
	if err := c.send(ctx, outbound{Type: "turn", Turn: newTurnFrame(res.Turn)}); err != nil {
		return err
	}
	for i := range res.Commits {
		if err := c.send(ctx, outbound{Type: "commit", Commit: &res.Commits[i]}); err != nil {
			return err
		}
	}
	return c.sendState(ctx)
}

func (c *client) sendState(ctx context.Context) error {
	snap := c.session.Snapshot()
	return c.send(ctx, outbound{Type: "state", State: &snap})
}

func (c *client) sendError(ctx context.Context, msg string) error {
	return c.send(ctx, outbound{Type: "error", Error: msg})
}

func (c *client) send(ctx context.Context, f outbound) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, data)
}

// ─── REST ────────────────────────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*dialogue.Session, *sink.Form, bool) {
	sess, form, ok := s.sessions.Get(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return sess, form, ok
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(sess.Transcript()))
}

// handleForm serves the field snapshot as JSON, or the plain-text export
// with ?format=text.
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	_, form, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := form.Export(w, s.headings(), s.now()); err != nil {
			s.log.Warn("gateway: export failed", "err", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": form.Snapshot()})
}

type fieldInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Heading string `json:"heading"`
}

func (s *Server) handleFields(w http.ResponseWriter, _ *http.Request) {
	h := s.headings()
	cats := types.Categories()
	out := make([]fieldInfo, len(cats))
	for i, c := range cats {
		out[i] = fieldInfo{ID: c.FieldID(), Name: c.String(), Heading: h.Fields[c]}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
