package dialogue

import (
	"log/slog"
	"time"

	"github.com/MrWong99/chartvox/internal/observe"
	"github.com/MrWong99/chartvox/internal/sink"
	"github.com/MrWong99/chartvox/pkg/types"
)

// Option configures a [Session].
type Option func(*Session)

// WithID sets the session ID. Default: a random UUID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithSink sets where commits go. Default: [sink.Discard].
func WithSink(k sink.Sink) Option {
	return func(s *Session) {
		if k != nil {
			s.sink = k
		}
	}
}

// WithRecorder archives every accepted turn.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithLogger sets the base logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics enables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithMaxPendingTurns sets how many topic-less clinician turns an open
// question survives. 0 keeps questions until answered, replaced or timed out.
func WithMaxPendingTurns(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxPendingTurns = n
		}
	}
}

// WithPendingTTL sets how long an open question survives. 0 disables the
// time limit.
func WithPendingTTL(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.pendingTTL = d
		}
	}
}

// WithClock sets the time source for utterances without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPartials receives interim results unchanged, e.g. to show live text.
// The callback runs on the caller's goroutine and must not call back into
// the session.
func WithPartials(fn func(types.Utterance)) Option {
	return func(s *Session) { s.partials = fn }
}

// WithTranscriptLabels sets the speaker names used by
// [Session.Transcript]. Default: 醫生 and 病人.
func WithTranscriptLabels(clinician, patient string) Option {
	return func(s *Session) { s.labels = [2]string{clinician, patient} }
}
