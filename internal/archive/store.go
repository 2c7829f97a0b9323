package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/chartvox/internal/dialogue"
	"github.com/MrWong99/chartvox/internal/observe"
	"github.com/MrWong99/chartvox/internal/resilience"
)

// Record is one archived turn.
type Record struct {
	ID        int64     `json:"id"`
	TurnID    string    `json:"turn_id,omitempty"`
	SessionID string    `json:"session_id"`
	Index     int       `json:"index"`
	Speaker   string    `json:"speaker"`
	Manual    bool      `json:"manual,omitempty"`
	Text      string    `json:"text"`
	Category  string    `json:"category,omitempty"`
	Seeded    string    `json:"seeded,omitempty"`
	SpokenAt  time.Time `json:"spoken_at"`
}

// SearchOpts narrows [Store.Search]. Zero fields do not filter.
type SearchOpts struct {
	SessionID string
	Speaker   string
	After     time.Time
	Before    time.Time
	Limit     int
}

// Option configures a [Store].
type Option func(*Store)

// WithBreaker replaces the default write breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Store) {
		if cb != nil {
			s.breaker = cb
		}
	}
}

// WithMetrics counts archive writes.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store is the PostgreSQL transcript archive. It implements
// [dialogue.Recorder]. All methods are safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
	log     *slog.Logger
}

var _ dialogue.Recorder = (*Store)(nil)

// Open connects to dsn, verifies the connection and migrates the schema.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool, opts...), nil
}

// New wraps an existing pool. The schema must already exist.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:    pool,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "archive"}),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks the database connection. It is used as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("archive: ping: %w", err)
	}
	return nil
}

// BreakerState reports the state of the write breaker.
func (s *Store) BreakerState() resilience.State { return s.breaker.State() }

// RecordTurn implements [dialogue.Recorder]. It writes t through the circuit
// breaker; while the breaker is open it fails fast with
// [resilience.ErrCircuitOpen].
func (s *Store) RecordTurn(ctx context.Context, sessionID string, t dialogue.Turn) error {
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.WriteTurn(ctx, sessionID, t)
	})
	if s.metrics != nil {
		status := "ok"
		switch {
		case err == nil:
		case errors.Is(err, resilience.ErrCircuitOpen):
			status = "rejected"
		default:
			status = "error"
		}
		s.metrics.RecordArchiveWrite(ctx, status)
	}
	return err
}

// WriteTurn stores t under sessionID. Writing the same turn id twice keeps
// the first write. A turn without an id is given a fresh one.
func (s *Store) WriteTurn(ctx context.Context, sessionID string, t dialogue.Turn) error {
	const q = `
		INSERT INTO dialogue_turns
		    (turn_id, session_id, turn_index, speaker, manual, text, category, seeded, assignments, spoken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (turn_id) DO NOTHING`

	turnID := t.ID
	if turnID == "" {
		turnID = uuid.NewString()
	}

	assignments, err := json.Marshal(t.Assignments)
	if err != nil {
		return fmt.Errorf("archive: encode assignments: %w", err)
	}
	if t.Assignments == nil {
		assignments = []byte("[]")
	}
	category := ""
	if t.Category != nil {
		category = t.Category.FieldID()
	}
	seeded := ""
	if t.Seeded.IsClassified() {
		seeded = t.Seeded.FieldID()
	}

	_, err = s.pool.Exec(ctx, q,
		turnID,
		sessionID,
		t.Index,
		t.Speaker.String(),
		t.Manual,
		t.Utterance.Text,
		category,
		seeded,
		assignments,
		t.Utterance.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("archive: write turn: %w", err)
	}
	return nil
}

const selectRecords = `SELECT id, COALESCE(turn_id, ''), session_id, turn_index, speaker, manual, text, category, seeded, spoken_at
FROM   dialogue_turns
`

// Turns returns the archived turns of sessionID in the order they were
// written. Turn indexes repeat after the session is cleared.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, selectRecords+"WHERE  session_id = $1\nORDER  BY id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: turns: %w", err)
	}
	return collectRecords(rows)
}

// Search finds turns whose text matches query, either as a full-text match
// or as a plain substring. The substring match covers Chinese text, which
// the 'simple' text search configuration does not split into words.
func (s *Store) Search(ctx context.Context, query string, opts SearchOpts) ([]Record, error) {
	args := []any{query, "%" + escapeLike(query) + "%"}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"(to_tsvector('simple', text) @@ plainto_tsquery('simple', $1) OR text ILIKE $2)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.Speaker != "" {
		conditions = append(conditions, "speaker = "+next(opts.Speaker))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "spoken_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "spoken_at < "+next(opts.Before))
	}

	q := selectRecords +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY spoken_at, id"
	if opts.Limit > 0 {
		q += "\nLIMIT " + next(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: search: %w", err)
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.TurnID, &r.SessionID, &r.Index, &r.Speaker, &r.Manual,
			&r.Text, &r.Category, &r.Seeded, &r.SpokenAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
