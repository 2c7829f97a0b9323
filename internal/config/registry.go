package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/chartvox/pkg/recognizer"
	"github.com/MrWong99/chartvox/pkg/recognizer/relay"
	"github.com/MrWong99/chartvox/pkg/recognizer/script"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested kind.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// RecognizerFactory builds a recognizer from its config entry.
type RecognizerFactory func(RecognizerEntry) (recognizer.Provider, error)

// Registry maps recognizer kinds to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[RecognizerKind]RecognizerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[RecognizerKind]RecognizerFactory)}
}

// DefaultRegistry returns a registry with the built-in relay and script
// recognizers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(RecognizerRelay, func(e RecognizerEntry) (recognizer.Provider, error) {
		opts := make([]relay.Option, 0, len(e.Headers))
		for _, k := range slices.Sorted(maps.Keys(e.Headers)) {
			opts = append(opts, relay.WithHeader(k, e.Headers[k]))
		}
		p, err := relay.New(e.URL, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	r.Register(RecognizerScript, func(e RecognizerEntry) (recognizer.Provider, error) {
		return script.New(e.Path, script.WithSpeakerLabels(e.SpeakerLabels...)), nil
	})
	return r
}

// Register registers factory under kind.
// Subsequent calls with the same kind overwrite the previous registration.
func (r *Registry) Register(kind RecognizerKind, factory RecognizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []RecognizerKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Create instantiates a recognizer using the factory registered under
// entry.Kind. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) Create(entry RecognizerEntry) (recognizer.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Kind)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create recognizer %q: %w", entry.Name, err)
	}
	return p, nil
}
