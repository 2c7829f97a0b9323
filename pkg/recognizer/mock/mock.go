// Package mock provides test doubles for the recognizer package interfaces.
//
// Use Provider to verify that the caller opens streams with the expected
// Config. Use Stream to feed controlled Event values:
//
//	s := &mock.Stream{EventsCh: make(chan recognizer.Event, 4)}
//	p := &mock.Provider{Stream: s}
//	s.EventsCh <- recognizer.Event{Text: "頭痛", IsFinal: true}
//	close(s.EventsCh)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chartvox/pkg/recognizer"
)

// OpenCall records a single invocation of Provider.Open.
type OpenCall struct {
	// Ctx is the context passed to Open.
	Ctx context.Context
	// Cfg is the Config passed to Open.
	Cfg recognizer.Config
}

// Provider is a mock implementation of recognizer.Provider.
type Provider struct {
	mu sync.Mutex

	// Stream is returned by Open. If nil, Open returns a new Stream with an
	// empty, already closed event channel.
	Stream recognizer.Stream

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// OpenCalls records every call to Open.
	OpenCalls []OpenCall
}

// Open records the call and returns Stream, OpenErr.
func (p *Provider) Open(ctx context.Context, cfg recognizer.Config) (recognizer.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCalls = append(p.OpenCalls, OpenCall{Ctx: ctx, Cfg: cfg})
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if p.Stream != nil {
		return p.Stream, nil
	}
	ch := make(chan recognizer.Event)
	close(ch)
	return &Stream{EventsCh: ch}, nil
}

// Calls returns a copy of the recorded Open calls. Thread-safe.
func (p *Provider) Calls() []OpenCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OpenCall, len(p.OpenCalls))
	copy(out, p.OpenCalls)
	return out
}

var _ recognizer.Provider = (*Provider)(nil)

// Stream is a mock implementation of recognizer.Stream. Tests own EventsCh
// and close it when done.
type Stream struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events.
	EventsCh chan recognizer.Event

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Events returns EventsCh.
func (s *Stream) Events() <-chan recognizer.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// Close increments CloseCallCount and returns CloseErr.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Closes returns CloseCallCount. Thread-safe.
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

var _ recognizer.Stream = (*Stream)(nil)
