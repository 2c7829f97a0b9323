package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/chartvox/pkg/recognizer"
)

// RecognizerFallback implements [recognizer.Provider] by opening the first
// healthy provider of a [FallbackGroup].
type RecognizerFallback struct {
	group *FallbackGroup[recognizer.Provider]
}

var _ recognizer.Provider = (*RecognizerFallback)(nil)

// NewRecognizerFallback creates a fallback with primary as the preferred
// recognizer.
func NewRecognizerFallback(primary recognizer.Provider, primaryName string, cfg FallbackConfig) *RecognizerFallback {
	return &RecognizerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers p after all earlier recognizers.
func (f *RecognizerFallback) AddFallback(name string, p recognizer.Provider) {
	f.group.AddFallback(name, p)
}

// Names returns the recognizer names in the order they are tried.
func (f *RecognizerFallback) Names() []string { return f.group.Names() }

// Open opens a stream on the first recognizer that succeeds. When none does
// the error wraps both [recognizer.ErrUnavailable] and [ErrAllFailed].
func (f *RecognizerFallback) Open(ctx context.Context, cfg recognizer.Config) (recognizer.Stream, error) {
	s, err := Try(ctx, f.group, func(ctx context.Context, p recognizer.Provider) (recognizer.Stream, error) {
		return p.Open(ctx, cfg)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("resilience: %w: %w", recognizer.ErrUnavailable, err)
	}
	return s, nil
}
