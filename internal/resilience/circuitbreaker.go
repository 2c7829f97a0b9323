// Package resilience keeps slow or failing collaborators from stalling a
// dialogue session.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) used
// in front of the transcript archive. [FallbackGroup] tries a list of
// providers in order with one breaker each; [RecognizerFallback] applies it
// to speech recognizers.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Do] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successes close the breaker; any failure opens it again.
	StateHalfOpen
)

// String returns "closed", "open", "half-open" or "unknown".
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds the tuning knobs of a [CircuitBreaker]. Zero
// fields take the defaults noted below.
type CircuitBreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string `yaml:"name"`

	// MaxFailures is the number of consecutive failures that opens a closed
	// breaker. Default: 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing.
	// Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of successful trials that closes the
	// breaker, and the most trials let through while half-open. Default: 3.
	HalfOpenMax int `yaml:"half_open_max"`
}

// BreakerOption customises a [CircuitBreaker].
type BreakerOption func(*CircuitBreaker)

// WithBreakerClock replaces time.Now, for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithBreakerLogger sets the logger for state changes. Default: [slog.Default].
func WithBreakerLogger(l *slog.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		if l != nil {
			cb.log = l
		}
	}
}

// OnStateChange registers fn to run after every transition. fn runs with
// the breaker's lock held and must not call back into it.
func OnStateChange(fn func(name string, from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	now      func() time.Time
	log      *slog.Logger
	onChange func(name string, from, to State)

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	trials    int
	trialWins int
}

// NewCircuitBreaker creates a closed [CircuitBreaker].
func NewCircuitBreaker(cfg CircuitBreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	cb := &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          time.Now,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// Name returns the configured name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Do runs fn if the breaker allows it and records the outcome. A cancelled
// ctx is returned without calling fn, and errors caused by ctx ending are
// not counted as failures.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case err == nil:
		cb.succeeded(trial)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		if trial {
			cb.trials--
		}
	default:
		cb.failed(trial)
	}
	return err
}

// Execute is [CircuitBreaker.Do] for functions without a context.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	return cb.Do(context.Background(), func(context.Context) error { return fn() })
}

// admit decides whether a call may proceed and whether it is a trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.trials, cb.trialWins = 0, 0
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.halfOpenMax {
			return false, ErrCircuitOpen
		}
		cb.trials++
		return true, nil
	}
	return false, nil
}

// failed records a failure. Callers hold cb.mu.
func (cb *CircuitBreaker) failed(trial bool) {
	if trial {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
		return
	}
	cb.failures++
	if cb.failures >= cb.maxFailures {
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
}

// succeeded records a success. Callers hold cb.mu.
func (cb *CircuitBreaker) succeeded(trial bool) {
	if !trial {
		cb.failures = 0
		return
	}
	cb.trialWins++
	if cb.state == StateHalfOpen && cb.trialWins >= cb.halfOpenMax {
		cb.failures = 0
		cb.transition(StateClosed)
	}
}

// transition changes state, logs and notifies. Callers hold cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	cb.log.Log(context.Background(), level, "circuit breaker state change",
		slog.String("name", cb.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("consecutive_failures", cb.failures),
	)
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout
// has passed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.trials, cb.trialWins = 0, 0, 0
	cb.transition(StateClosed)
}
