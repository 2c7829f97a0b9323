// Package dialogue runs one clinical conversation: it turns the stream of
// final recognizer utterances into labelled turns and field commits.
//
// A [Session] is a small state machine. While Listening, each final
// utterance is de-duplicated, attributed to a speaker and either remembered
// as an open clinician question ([PendingQuestion]) or classified and
// committed to the [sink.Sink]. The next patient answer after a question
// about a known section goes to that section whole.
//
// Sessions are independent; the lexicon and classifiers they use are shared
// read-only. All exported methods are safe for concurrent use, but events
// are meant to arrive one at a time through [Session.Run].
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/chartvox/internal/classify"
	"github.com/MrWong99/chartvox/internal/observe"
	"github.com/MrWong99/chartvox/internal/sink"
	"github.com/MrWong99/chartvox/internal/speaker"
	"github.com/MrWong99/chartvox/pkg/types"
)

const (
	// DefaultMaxPendingTurns is how many topic-less clinician turns an open
	// question survives.
	DefaultMaxPendingTurns = 2

	// DefaultPendingTTL is how long an open question survives, measured on
	// utterance timestamps.
	DefaultPendingTTL = 2 * time.Minute
)

// State is the lifecycle state of a [Session].
type State int

const (
	// Idle sessions ignore every utterance.
	Idle State = iota
	// Listening sessions process final utterances.
	Listening
)

// String returns "idle" or "listening".
func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome says what [Session.Handle] did with an utterance.
type Outcome string

const (
	Accepted  Outcome = observe.OutcomeAccepted
	Duplicate Outcome = observe.OutcomeDuplicate
	Empty     Outcome = observe.OutcomeEmpty
	Interim   Outcome = observe.OutcomeInterim
	Ignored   Outcome = observe.OutcomeIdle
)

// Turn is one accepted utterance with its speaker and classification.
// Turns are appended to the log and never modified.
type Turn struct {
	// ID is unique across sessions and restarts. Index restarts at zero
	// when the session is cleared.
	ID        string          `json:"id"`
	Index     int             `json:"index"`
	Utterance types.Utterance `json:"utterance"`
	Speaker   types.Speaker   `json:"speaker"`

	// Manual is set when the speaker came from an override, not the
	// classifier.
	Manual bool `json:"manual,omitempty"`

	// Category is the primary category of a committed turn; nil when the
	// turn committed nothing (clinician questions).
	Category *types.Category `json:"category,omitempty"`

	// Seeded is the category a clinician turn asked about.
	Seeded types.Category `json:"seeded"`

	Assignments []classify.Assignment `json:"assignments,omitempty"`
}

// PendingQuestion is the category of the last clinician question that has
// not been answered yet.
type PendingQuestion struct {
	Category types.Category `json:"category"`
	SetAt    time.Time      `json:"set_at"`

	// Age counts later clinician turns that did not replace the question.
	Age int `json:"age"`
}

// Recorder persists turns outside the session, e.g. a transcript archive.
type Recorder interface {
	RecordTurn(ctx context.Context, sessionID string, t Turn) error
}

// Stats are running counters of a session.
type Stats struct {
	Turns      int `json:"turns"`
	Commits    int `json:"commits"`
	Duplicates int `json:"duplicates"`
	Characters int `json:"characters"`
}

// HandleResult reports the effect of one utterance.
type HandleResult struct {
	Outcome Outcome
	Turn    *Turn
	Commits []types.Commit
}

// Session holds the state of one conversation. Create with [New].
type Session struct {
	id       string
	speakers *speaker.Classifier
	fields   *classify.Classifier

	sink     sink.Sink
	recorder Recorder
	metrics  *observe.Metrics
	log      *slog.Logger
	now      func() time.Time
	partials func(types.Utterance)

	maxPendingTurns int
	pendingTTL      time.Duration
	labels          [2]string

	mu           sync.Mutex
	state        State
	turns        []Turn
	pending      *PendingQuestion
	lastAccepted string
	override     types.Speaker
	target       types.Category
	stats        Stats
}

// New creates an Idle session using the given classifiers.
func New(speakers *speaker.Classifier, fields *classify.Classifier, opts ...Option) *Session {
	s := &Session{
		speakers:        speakers,
		fields:          fields,
		sink:            sink.Discard,
		log:             slog.Default(),
		now:             time.Now,
		maxPendingTurns: DefaultMaxPendingTurns,
		pendingTTL:      DefaultPendingTTL,
		labels:          [2]string{"醫生", "病人"},
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.log = s.log.With(slog.String("session_id", s.id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves the session to Listening. Starting a listening session is a
// no-op.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Listening {
		return
	}
	s.state = Listening
	s.log.Info("session listening")
}

// Stop moves the session to Idle and discards any open question. The turn
// log is kept.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.expireLocked(context.Background(), "stop")
	}
	if s.state == Idle {
		return
	}
	s.state = Idle
	s.log.Info("session idle", slog.Int("turns", len(s.turns)))
}

// Clear stops the session and forgets everything it has seen: turns, the
// open question, the duplicate filter and the counters. Content already
// committed to the sink is not touched.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.turns = nil
	s.pending = nil
	s.lastAccepted = ""
	s.stats = Stats{}
	s.log.Info("session cleared")
}

// SetSpeakerOverride pins the speaker of every following utterance.
// [types.Unknown] returns to automatic detection.
func (s *Session) SetSpeakerOverride(sp types.Speaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = sp
}

// SpeakerOverride returns the pinned speaker, or [types.Unknown].
func (s *Session) SpeakerOverride() types.Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.override
}

// SetTarget switches to targeted-field mode: every accepted utterance is
// committed to c without classification, whoever speaks.
// [types.Unclassified] returns to automatic mode.
func (s *Session) SetTarget(c types.Category) error {
	if !c.IsValid() {
		return fmt.Errorf("dialogue: invalid target %s", c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = c
	return nil
}

// Target returns the targeted field, or [types.Unclassified] in automatic
// mode.
func (s *Session) Target() types.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Pending returns a copy of the open question, or nil.
func (s *Session) Pending() *PendingQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// Turns returns a copy of the turn log.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Stats returns the running counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID       string           `json:"id"`
	State    State            `json:"state"`
	Target   types.Category   `json:"target"`
	Override types.Speaker    `json:"speaker_override"`
	Pending  *PendingQuestion `json:"pending,omitempty"`
	Stats    Stats            `json:"stats"`
}

// Snapshot returns the current state, mode and counters in one consistent
// read.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:       s.id,
		State:    s.state,
		Target:   s.target,
		Override: s.override,
		Stats:    s.stats,
	}
	if s.pending != nil {
		p := *s.pending
		snap.Pending = &p
	}
	return snap
}

// Transcript renders the turn log as "[HH:MM:SS] speaker: text" lines
// separated by blank lines.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for i, t := range s.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		label := s.labels[1]
		if t.Speaker == types.Clinician {
			label = s.labels[0]
		}
		fmt.Fprintf(&b, "[%s] %s: %s", t.Utterance.Timestamp.Format(time.TimeOnly), label, t.Utterance.Text)
	}
	return b.String()
}

// Run feeds every utterance from ch through [Session.Handle], one at a time.
// It returns nil when ch is closed and ctx.Err() when ctx is cancelled. Sink
// failures are logged and do not stop the loop.
func (s *Session) Run(ctx context.Context, ch <-chan types.Utterance) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := s.Handle(ctx, u); err != nil {
				s.log.Warn("commit failed", slog.Any("err", err))
			}
		}
	}
}

// Handle processes one recognizer result. The returned error reports sink
// failures only; the session state has been updated regardless.
func (s *Session) Handle(ctx context.Context, u types.Utterance) (HandleResult, error) {
	if !u.IsFinal {
		s.mu.Lock()
		listening := s.state == Listening
		s.mu.Unlock()
		if !listening {
			s.observe(ctx, Ignored)
			return HandleResult{Outcome: Ignored}, nil
		}
		s.observe(ctx, Interim)
		if s.partials != nil {
			s.partials(u)
		}
		return HandleResult{Outcome: Interim}, nil
	}

	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	text := strings.TrimSpace(u.Text)
	switch {
	case s.state != Listening:
		s.observe(ctx, Ignored)
		return HandleResult{Outcome: Ignored}, nil
	case classify.IsBlank(text):
		s.observe(ctx, Empty)
		return HandleResult{Outcome: Empty}, nil
	case text == s.lastAccepted:
		s.stats.Duplicates++
		s.log.Debug("duplicate utterance dropped", slog.String("text", text))
		s.observe(ctx, Duplicate)
		return HandleResult{Outcome: Duplicate}, nil
	}
	s.observe(ctx, Accepted)

	ctx, span := observe.StartTurnSpan(ctx, s.id)

	u.Text = text
	if u.Timestamp.IsZero() {
		u.Timestamp = s.now()
	}
	s.expireByAgeLocked(ctx, u.Timestamp)

	turn := Turn{ID: uuid.NewString(), Index: len(s.turns), Utterance: u}
	turn.Speaker, turn.Manual = s.speakerLocked(text)

	var consumed *PendingQuestion
	switch {
	case s.target.IsClassified():
		turn.Assignments = []classify.Assignment{s.fields.Target(text, s.target)}
	case turn.Speaker == types.Clinician:
		s.seedLocked(ctx, &turn)
	default:
		pending := types.Unclassified
		if consumed = s.pending; consumed != nil {
			pending = consumed.Category
			s.pending = nil
		}
		turn.Assignments = s.fields.Assign(text, pending)
	}
	if len(turn.Assignments) > 0 {
		c := turn.Assignments[0].Category
		turn.Category = &c
	}

	s.turns = append(s.turns, turn)
	s.stats.Turns++
	s.stats.Characters += len([]rune(text))
	if s.metrics != nil {
		s.metrics.RecordTurn(ctx, turn.Speaker.String())
	}
	s.log.Debug("turn accepted",
		slog.Int("index", turn.Index),
		slog.String("speaker", turn.Speaker.String()),
		slog.String("seeded", turn.Seeded.FieldID()),
		slog.Int("assignments", len(turn.Assignments)),
	)

	res := HandleResult{Outcome: Accepted, Turn: &turn}
	var errs []error
	for _, a := range turn.Assignments {
		if !a.Category.IsClassified() {
			s.log.Warn("no field for utterance", slog.String("text", a.Text))
			continue
		}
		c := types.Commit{SessionID: s.id, Category: a.Category, Text: a.Text, Timestamp: u.Timestamp}
		if err := s.sink.Commit(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("dialogue: commit %s: %w", a.Category.FieldID(), err))
			if s.metrics != nil {
				s.metrics.RecordSinkError(ctx, "session")
			}
			continue
		}
		res.Commits = append(res.Commits, c)
		s.stats.Commits++
		if s.metrics != nil {
			s.metrics.RecordCommit(ctx, a.Category.FieldID(), string(a.Reason))
		}
		s.log.Debug("committed",
			slog.String("category", a.Category.FieldID()),
			slog.String("reason", string(a.Reason)),
			slog.Float64("score", a.Score),
		)
	}

	// A turn whose every commit failed is not remembered for de-duplication,
	// so the recognizer's re-emission of it is committed once the sink
	// recovers. The question it answered stays open for that retry.
	if len(errs) > 0 && len(res.Commits) == 0 {
		if consumed != nil && s.pending == nil {
			s.pending = consumed
		}
	} else {
		s.lastAccepted = text
	}

	if s.recorder != nil {
		if err := s.recorder.RecordTurn(ctx, s.id, turn); err != nil {
			s.log.Warn("turn not archived", slog.Int("index", turn.Index), slog.Any("err", err))
		}
	}
	if s.metrics != nil {
		s.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds())
	}
	err := errors.Join(errs...)
	var seeded string
	if turn.Seeded.IsClassified() {
		seeded = turn.Seeded.FieldID()
	}
	observe.EndTurnSpan(span, turn.Speaker.String(), seeded, len(res.Commits), err)
	return res, err
}

func (s *Session) speakerLocked(text string) (types.Speaker, bool) {
	if s.override != types.Unknown {
		return s.override, true
	}
	prev := types.Unknown
	if n := len(s.turns); n > 0 {
		prev = s.turns[n-1].Speaker
	}
	return s.speakers.Label(text, prev), false
}

// seedLocked records the topic of a clinician turn. A topical question
// replaces the open one; a topic-less turn ages it.
func (s *Session) seedLocked(ctx context.Context, turn *Turn) {
	cat, _ := s.fields.Seed(turn.Utterance.Text)
	turn.Seeded = cat
	if cat.IsClassified() {
		s.pending = &PendingQuestion{Category: cat, SetAt: turn.Utterance.Timestamp}
		s.log.Debug("pending question", slog.String("category", cat.FieldID()))
		return
	}
	if s.pending == nil {
		return
	}
	s.pending.Age++
	if s.maxPendingTurns > 0 && s.pending.Age >= s.maxPendingTurns {
		s.expireLocked(ctx, "turns")
	}
}

func (s *Session) expireByAgeLocked(ctx context.Context, now time.Time) {
	if s.pending == nil || s.pendingTTL <= 0 {
		return
	}
	if now.Sub(s.pending.SetAt) > s.pendingTTL {
		s.expireLocked(ctx, "ttl")
	}
}

func (s *Session) expireLocked(ctx context.Context, cause string) {
	s.log.Debug("pending question expired",
		slog.String("category", s.pending.Category.FieldID()),
		slog.String("cause", cause),
	)
	s.pending = nil
	if s.metrics != nil {
		s.metrics.RecordPendingExpired(ctx, cause)
	}
}

func (s *Session) observe(ctx context.Context, o Outcome) {
	if s.metrics != nil {
		s.metrics.RecordUtterance(ctx, string(o))
	}
}
