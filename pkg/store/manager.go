package store

import "context"

// ProjectionManager is the facade the engine uses to read and react to
// operator-driven status changes (C6), and to discover stream names for
// fromAll projections. It is usually backed by the same table as
// ControlStore, but kept as a separate interface because it is the surface
// an operator tool or a different storage backend might implement on its
// own.
type ProjectionManager interface {
	// FetchProjectionStatus returns the row's current status. A missing row
	// is not an error here: callers treat it as StatusIdle so a poller never
	// fails merely because nobody has created the row yet.
	FetchProjectionStatus(ctx context.Context, name string) (Status, error)

	// IdleProjection marks a projection idle without touching its
	// checkpoint. Called when a runner settles into the stopped state.
	IdleProjection(ctx context.Context, name string) error

	// FetchAllStreamNames lists every stream name known to the store,
	// excluding internal ("$"-prefixed) streams. Used to resolve fromAll.
	FetchAllStreamNames(ctx context.Context) ([]string, error)
}
