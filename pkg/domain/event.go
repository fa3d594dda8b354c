package domain

import (
	"encoding/json"
	"time"
)

// Event is an immutable fact recorded on a stream. No is the event's
// position within its own stream and is strictly increasing per stream.
type Event struct {
	// ID is the unique identifier of this event, assigned by the event store.
	ID string

	// No is the per-stream monotonic event number.
	No int64

	// Name is the event type, e.g. "account.opened".
	Name string

	// Payload is the opaque, JSON-serializable event body.
	Payload json.RawMessage

	// Metadata carries contextual information about the event.
	Metadata EventMetadata

	// Timestamp is when the event was appended.
	Timestamp time.Time
}

// EventMetadata contains contextual information about an event.
type EventMetadata struct {
	// Stream is the name of the stream this event belongs to.
	Stream string

	// Custom allows application-specific metadata to ride along with the event.
	Custom map[string]string
}

// Matcher is an opaque predicate over event fields. The projector never
// inspects a Matcher's contents; it passes it through to the event store's
// MergeAndLoad. Concrete event store implementations interpret it.
type Matcher struct {
	// EventNames restricts matching to these names. Empty matches any name.
	EventNames []string

	// Custom is an optional predicate evaluated by event store implementations
	// that support it. Not all event stores need to honor it.
	Custom func(*Event) bool
}

// Matches reports whether the event satisfies the matcher. A nil matcher
// matches everything.
func (m *Matcher) Matches(e *Event) bool {
	if m == nil {
		return true
	}
	if len(m.EventNames) > 0 {
		found := false
		for _, n := range m.EventNames {
			if n == e.Name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.Custom != nil && !m.Custom(e) {
		return false
	}
	return true
}
