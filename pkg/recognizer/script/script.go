// Package script provides a recognizer.Provider that replays a recorded
// transcript, one final utterance per line.
//
// Lines may start with a "[HH:MM:SS]" time prefix, the format written by
// the dialogue transcript. The time is placed on the provider's base date.
// Lines without a prefix carry no timestamp. Blank lines are skipped.
package script

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/chartvox/pkg/recognizer"
)

// Option is a functional option for configuring the script Provider.
type Option func(*Provider)

// WithBaseDate sets the date that "[HH:MM:SS]" prefixes are placed on.
// Default: today in the local time zone.
func WithBaseDate(d time.Time) Option {
	return func(p *Provider) {
		p.base = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	}
}

// WithSpeakerLabels strips a leading "label:" for any of labels, so a
// rendered transcript replays as plain speech.
func WithSpeakerLabels(labels ...string) Option {
	return func(p *Provider) { p.labels = append(p.labels, labels...) }
}

// Provider replays transcript lines as final events.
type Provider struct {
	open   func() (io.ReadCloser, error)
	name   string
	base   time.Time
	labels []string
}

// New creates a Provider reading the file at path on every Open.
func New(path string, opts ...Option) *Provider {
	return newProvider(path, func() (io.ReadCloser, error) { return os.Open(path) }, opts)
}

// FromBytes creates a Provider replaying data on every Open.
func FromBytes(data []byte, opts ...Option) *Provider {
	return newProvider("inline", func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, opts)
}

func newProvider(name string, open func() (io.ReadCloser, error), opts []Option) *Provider {
	now := time.Now()
	p := &Provider{
		open: open,
		name: name,
		base: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Open starts replaying. A source that cannot be opened wraps
// [recognizer.ErrUnavailable]. cfg is ignored.
func (p *Provider) Open(ctx context.Context, _ recognizer.Config) (recognizer.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := p.open()
	if err != nil {
		return nil, fmt.Errorf("script: open %s: %w: %w", p.name, recognizer.ErrUnavailable, err)
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &stream{
		rc:     rc,
		events: make(chan recognizer.Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.replay(sctx, p.base, p.labels)
	return s, nil
}

var _ recognizer.Provider = (*Provider)(nil)

type stream struct {
	rc     io.ReadCloser
	events chan recognizer.Event
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *stream) Events() <-chan recognizer.Event { return s.events }

func (s *stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *stream) replay(ctx context.Context, base time.Time, labels []string) {
	defer close(s.done)
	defer close(s.events)
	defer s.rc.Close()

	sc := bufio.NewScanner(s.rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		e, ok := ParseLine(sc.Text(), base)
		if !ok {
			continue
		}
		if e.Text = stripLabel(e.Text, labels); e.Text == "" {
			continue
		}
		select {
		case s.events <- e:
		case <-ctx.Done():
			return
		}
	}
}

// ParseLine turns one transcript line into a final event. A valid
// "[HH:MM:SS]" prefix sets the timestamp on base's date.
func ParseLine(line string, base time.Time) (recognizer.Event, bool) {
	line = strings.TrimSpace(line)
	e := recognizer.Event{IsFinal: true}
	if rest, ok := strings.CutPrefix(line, "["); ok {
		if stamp, text, ok := strings.Cut(rest, "]"); ok {
			if t, err := time.Parse(time.TimeOnly, stamp); err == nil {
				e.Timestamp = time.Date(base.Year(), base.Month(), base.Day(),
					t.Hour(), t.Minute(), t.Second(), 0, base.Location())
				line = strings.TrimSpace(text)
			}
		}
	}
	if line == "" {
		return recognizer.Event{}, false
	}
	e.Text = line
	return e, true
}

func stripLabel(text string, labels []string) string {
	for _, l := range labels {
		rest, ok := strings.CutPrefix(text, l)
		if !ok {
			continue
		}
		for _, sep := range []string{":", "："} {
			if r, ok := strings.CutPrefix(rest, sep); ok {
				return strings.TrimSpace(r)
			}
		}
	}
	return text
}
