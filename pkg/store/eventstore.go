package store

import (
	"context"

	"github.com/plaenen/projector/pkg/domain"
)

// StreamQuery describes one stream to merge-load from: resume from
// fromNumber (exclusive of anything already consumed) and filter through
// matcher.
type StreamQuery struct {
	Stream     string
	FromNumber int64
	Matcher    *domain.Matcher
}

// EventIterator is a finite, single-pass sequence of events produced by one
// call to MergeAndLoad. It must be closed by the caller when done; a fresh
// pass requires a fresh call to MergeAndLoad.
type EventIterator interface {
	// Next advances to the next event, returning false when the sequence is
	// exhausted or an error occurred (check Err).
	Next() bool

	// Event returns the current event. Valid only after a Next call that
	// returned true.
	Event() *domain.Event

	// Err returns the first error encountered, if any.
	Err() error

	// Close releases resources held by the iterator.
	Close() error
}

// EventStore is the projection engine's view of the event log: a set of
// named, append-only streams that can be merge-loaded in one pass. It is an
// external collaborator — the engine never creates the backing storage, only
// consumes it through this interface.
type EventStore interface {
	// HasStream reports whether name has ever been created.
	HasStream(ctx context.Context, name string) (bool, error)

	// CreateStream creates an empty stream. It is not an error to create a
	// stream that already exists.
	CreateStream(ctx context.Context, name string) error

	// DeleteStream removes a stream and every event on it.
	DeleteStream(ctx context.Context, name string) error

	// AppendTo appends events to the named stream, assigning each a
	// monotonically increasing event number.
	AppendTo(ctx context.Context, name string, events []*domain.Event) error

	// MergeAndLoad returns a single chronologically-merged iterator over the
	// given stream queries. Merging is by append order across streams; it
	// does not imply any cross-stream causal guarantee beyond that.
	MergeAndLoad(ctx context.Context, queries []StreamQuery) (EventIterator, error)

	// StreamNames lists every stream name currently known to the store,
	// excluding internal/system streams (conventionally prefixed "$"). Used
	// by fromAll projections to discover what to merge-load.
	StreamNames(ctx context.Context) ([]string, error)
}
