package projector

import "github.com/plaenen/projector/pkg/domain"

// StreamSpec names one stream to consume, with an optional matcher over its
// events.
type StreamSpec struct {
	Stream  string
	Matcher *domain.Matcher
}

// querySpec is the write-once "what to consume" configuration (C2): either
// every stream (queryAll) or a fixed, named subset (streams). Both empty is
// a configuration error caught by Build's preflight check.
type querySpec struct {
	queryAll bool
	streams  []StreamSpec
}

func (q *querySpec) matcherFor(stream string) *domain.Matcher {
	for _, s := range q.streams {
		if s.Stream == stream {
			return s.Matcher
		}
	}
	return nil
}

func (q *querySpec) streamNames() []string {
	names := make([]string, len(q.streams))
	for i, s := range q.streams {
		names[i] = s.Stream
	}
	return names
}

func (q *querySpec) isSet() bool {
	return q.queryAll || len(q.streams) > 0
}
