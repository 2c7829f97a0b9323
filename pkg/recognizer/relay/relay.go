// Package relay provides a recognizer.Provider that dials a recognition
// relay over websocket and decodes its JSON result frames.
//
// On connect the client sends one text frame
//
//	{"type":"config","language":"zh-TW","hints":["阿斯匹靈"]}
//
// and then reads [recognizer.Event] frames until either side closes.
// Frames that are not valid events are skipped.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/chartvox/pkg/recognizer"
)

const defaultBuffer = 64

// Option is a functional option for configuring the relay Provider.
type Option func(*Provider)

// WithHeader adds an HTTP header to the websocket handshake, e.g. for
// authorization.
func WithHeader(key, value string) Option {
	return func(p *Provider) {
		p.header.Add(key, value)
	}
}

// WithBuffer sets the event channel capacity.
func WithBuffer(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// Provider implements recognizer.Provider backed by a websocket relay.
type Provider struct {
	endpoint string
	header   http.Header
	buffer   int
}

// New creates a relay Provider for the given ws:// or wss:// endpoint.
func New(endpoint string, opts ...Option) (*Provider, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("relay: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("relay: unsupported scheme %q", u.Scheme)
	}
	p := &Provider{
		endpoint: endpoint,
		header:   http.Header{},
		buffer:   defaultBuffer,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Endpoint returns the relay URL.
func (p *Provider) Endpoint() string { return p.endpoint }

// configFrame is the first message sent to the relay.
type configFrame struct {
	Type     string   `json:"type"`
	Language string   `json:"language,omitempty"`
	Hints    []string `json:"hints,omitempty"`
}

// Open dials the relay and sends the stream configuration. Dial failures
// wrap [recognizer.ErrUnavailable].
func (p *Provider) Open(ctx context.Context, cfg recognizer.Config) (recognizer.Stream, error) {
	conn, _, err := websocket.Dial(ctx, p.endpoint, &websocket.DialOptions{
		HTTPHeader: p.header.Clone(),
	})
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w: %w", p.endpoint, recognizer.ErrUnavailable, err)
	}

	msg, err := json.Marshal(configFrame{Type: "config", Language: cfg.Language, Hints: cfg.Hints})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "encode config")
		return nil, fmt.Errorf("relay: encode config: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		conn.Close(websocket.StatusInternalError, "send config")
		return nil, fmt.Errorf("relay: send config: %w: %w", recognizer.ErrUnavailable, err)
	}

	// The stream outlives the dial context; Close cancels it.
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &stream{
		conn:   conn,
		events: make(chan recognizer.Event, p.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop(sctx)
	return s, nil
}

var _ recognizer.Provider = (*Provider)(nil)

// stream is a live relay connection. It implements recognizer.Stream.
type stream struct {
	conn   *websocket.Conn
	events chan recognizer.Event
	cancel context.CancelFunc

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *stream) Events() <-chan recognizer.Event { return s.events }

func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// readLoop decodes relay frames into events until the connection ends.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		typ, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or cancellation.
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		e, ok := ParseEvent(msg)
		if !ok {
			continue
		}
		select {
		case s.events <- e:
		case <-s.done:
			return
		}
	}
}

// ParseEvent decodes one relay frame. Frames with a "type" other than
// "result", or with no text, are reported as not ok.
func ParseEvent(data []byte) (recognizer.Event, bool) {
	var frame struct {
		Type string `json:"type"`
		recognizer.Event
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return recognizer.Event{}, false
	}
	if frame.Type != "" && frame.Type != "result" {
		return recognizer.Event{}, false
	}
	if frame.Text == "" {
		return recognizer.Event{}, false
	}
	return frame.Event, true
}

