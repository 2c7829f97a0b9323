// Package sink receives the commits produced by dialogue sessions.
//
// The core engine only ever appends: a [Sink] is told "this text belongs to
// this field" and decides what that means. [Form] keeps the note in memory,
// [JSONL] keeps an append-only log on disk and [Multi] fans out to several.
package sink

import (
	"context"
	"errors"

	"github.com/MrWong99/chartvox/pkg/types"
)

// ErrInvalidCategory is returned for commits that target no clinical field.
var ErrInvalidCategory = errors.New("sink: commit targets no clinical field")

// Sink consumes commits. Implementations must be safe for concurrent use;
// the engine calls Commit synchronously from the session's event loop.
type Sink interface {
	Commit(ctx context.Context, c types.Commit) error
}

// Func adapts a plain function to [Sink].
type Func func(ctx context.Context, c types.Commit) error

// Commit calls f.
func (f Func) Commit(ctx context.Context, c types.Commit) error { return f(ctx, c) }

// Multi returns a sink that forwards each commit to every non-nil sink in
// order. All sinks are tried; their errors are joined.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Commit(ctx context.Context, c types.Commit) error {
	var errs []error
	for _, s := range m {
		if err := s.Commit(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every commit.
var Discard Sink = Func(func(context.Context, types.Commit) error { return nil })
