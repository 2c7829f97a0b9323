// Package recognizer defines the contract between chartvox and a speech
// recognizer.
//
// Recognition itself happens elsewhere: in the clinician's browser, behind
// a websocket relay, or in a recorded transcript. A [Provider] opens a
// [Stream] of [Event] values; [Finals] turns that stream into the
// [types.Utterance] channel a dialogue session consumes.
//
// Implementations must be safe for concurrent use.
package recognizer

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/chartvox/pkg/types"
)

// ErrUnavailable is wrapped by every provider that cannot open a stream,
// e.g. because the relay is unreachable or the transcript file is missing.
var ErrUnavailable = errors.New("recognizer unavailable")

// Event is one recognition result in the browser wire format.
type Event struct {
	// Text is the recognized content.
	Text string `json:"text"`

	// IsFinal marks authoritative results. Interim results may be revised.
	IsFinal bool `json:"isFinal"`

	// Timestamp is when the result was produced. Zero means "now" to the
	// consumer.
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Confidence is in [0, 1]; zero if the recognizer does not report it.
	Confidence float64 `json:"confidence,omitempty"`
}

// Utterance converts e into the engine's input type.
func (e Event) Utterance() types.Utterance {
	return types.Utterance{Text: e.Text, Timestamp: e.Timestamp, IsFinal: e.IsFinal}
}

// Config describes a new recognition stream.
type Config struct {
	// Language is the BCP-47 tag for recognition, e.g. "zh-TW".
	Language string

	// Hints are vocabulary hints such as drug names. Providers that cannot use
	// them ignore them.
	Hints []string
}

// Stream is an open recognition stream. Callers must call Close when done.
type Stream interface {
	// Events returns the result channel. It is closed when the stream ends.
	Events() <-chan Event

	// Close ends the stream and releases its resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Provider opens recognition streams.
type Provider interface {
	// Open starts a stream. The returned error wraps [ErrUnavailable] when the
	// recognizer cannot be reached.
	Open(ctx context.Context, cfg Config) (Stream, error)
}

// Finals forwards the final events of s as utterances and drops interim
// ones. The returned channel is closed when the stream ends or ctx is
// cancelled. Finals does not close s.
func Finals(ctx context.Context, s Stream) <-chan types.Utterance {
	out := make(chan types.Utterance, 16)
	go func() {
		defer close(out)
		events := s.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if !e.IsFinal {
					continue
				}
				select {
				case out <- e.Utterance():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
