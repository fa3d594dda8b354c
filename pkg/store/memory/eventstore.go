// Package memory is an in-process implementation of the projector's storage
// interfaces, for tests and for demos that don't need a real database. It
// trades durability for zero setup: every store here is a plain
// mutex-guarded map that vanishes with the process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/idgen"
	"github.com/plaenen/projector/pkg/store"
)

// EventStore is an in-memory store.EventStore. Global merge order is simply
// append order under a single mutex; each event is still given a sortable
// ID via idgen, matching the shape a distributed store would hand back.
type EventStore struct {
	mu      sync.RWMutex
	streams map[string][]*domain.Event
	order   []*domain.Event
}

// NewEventStore returns an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{streams: make(map[string][]*domain.Event)}
}

func (s *EventStore) HasStream(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streams[name]
	return ok, nil
}

func (s *EventStore) CreateStream(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[name]; !ok {
		s.streams[name] = nil
	}
	return nil
}

func (s *EventStore) DeleteStream(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, name)

	kept := s.order[:0:0]
	for _, e := range s.order {
		if e.Metadata.Stream != name {
			kept = append(kept, e)
		}
	}
	s.order = kept
	return nil
}

func (s *EventStore) AppendTo(ctx context.Context, name string, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[name]; !ok {
		s.streams[name] = nil
	}

	next := int64(len(s.streams[name])) + 1
	for _, e := range events {
		if e.ID == "" {
			e.ID = idgen.MustGenerateSortableID()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		e.No = next
		e.Metadata.Stream = name
		next++

		s.streams[name] = append(s.streams[name], e)
		s.order = append(s.order, e)
	}
	return nil
}

func (s *EventStore) StreamNames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		if len(name) > 0 && name[0] == '$' {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (s *EventStore) MergeAndLoad(ctx context.Context, queries []store.StreamQuery) (store.EventIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := make(map[string]int64, len(queries))
	matchers := make(map[string]*domain.Matcher, len(queries))
	for _, q := range queries {
		from[q.Stream] = q.FromNumber
		matchers[q.Stream] = q.Matcher
	}

	var events []*domain.Event
	for _, e := range s.order {
		min, ok := from[e.Metadata.Stream]
		if !ok || e.No < min {
			continue
		}
		if m := matchers[e.Metadata.Stream]; m != nil && !m.Matches(e) {
			continue
		}
		events = append(events, e)
	}

	return &eventIterator{events: events, idx: -1}, nil
}

type eventIterator struct {
	events []*domain.Event
	idx    int
}

func (it *eventIterator) Next() bool {
	it.idx++
	return it.idx < len(it.events)
}

func (it *eventIterator) Event() *domain.Event { return it.events[it.idx] }
func (it *eventIterator) Err() error           { return nil }
func (it *eventIterator) Close() error         { return nil }

var (
	_ store.EventStore    = (*EventStore)(nil)
	_ store.EventIterator = (*eventIterator)(nil)
)
