package secrets

import "context"

// StaticResolver returns a fixed value for any URL. Intended for local
// development and tests where wiring a real secret backend is unnecessary.
type StaticResolver struct {
	Value string
}

// Resolve always returns the configured static value.
func (r StaticResolver) Resolve(ctx context.Context, url string) (string, error) {
	return r.Value, nil
}

// Close is a no-op for StaticResolver.
func (r StaticResolver) Close() error { return nil }

var _ Resolver = StaticResolver{}
