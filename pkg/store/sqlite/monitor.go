package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/plaenen/projector/pkg/store"
)

// Monitor is a SQLite-backed store.ProjectionMonitor. It shares its
// connection pool with EventStore/ControlStore but lives in its own table so
// a dashboard can poll it without touching the hot path's rows.
type Monitor struct {
	db *sql.DB
}

func NewMonitor(db *sql.DB) *Monitor {
	return &Monitor{db: db}
}

func (m *Monitor) Save(name string, state *store.OperationalState) error {
	var eventsProcessed, totalEvents, startedAt int64
	if state.Progress != nil {
		eventsProcessed = state.Progress.EventsProcessed
		totalEvents = state.Progress.TotalEvents
		if !state.Progress.StartedAt.IsZero() {
			startedAt = state.Progress.StartedAt.UnixMilli()
		}
	}

	_, err := m.db.Exec(
		`INSERT INTO projection_monitor (name, status, message, updated_at, events_processed, total_events, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   status = excluded.status,
		   message = excluded.message,
		   updated_at = excluded.updated_at,
		   events_processed = excluded.events_processed,
		   total_events = excluded.total_events,
		   started_at = excluded.started_at`,
		name, string(state.Status), state.Message, time.Now().UnixMilli(),
		eventsProcessed, totalEvents, startedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: save operational state for %s: %w", name, err)
	}
	return nil
}

func (m *Monitor) Load(name string) (*store.OperationalState, error) {
	var status, message string
	var updatedAtMs, eventsProcessed, totalEvents int64
	var startedAtMs sql.NullInt64

	err := m.db.QueryRow(
		`SELECT status, message, updated_at, events_processed, total_events, started_at
		 FROM projection_monitor WHERE name = ?`, name,
	).Scan(&status, &message, &updatedAtMs, &eventsProcessed, &totalEvents, &startedAtMs)
	if err == sql.ErrNoRows {
		return nil, store.ErrProjectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load operational state for %s: %w", name, err)
	}

	state := &store.OperationalState{
		ProjectionName: name,
		Status:         store.OperationalStatus(status),
		Message:        message,
		UpdatedAt:      time.UnixMilli(updatedAtMs),
	}
	if eventsProcessed > 0 || totalEvents > 0 {
		progress := &store.RebuildProgress{
			EventsProcessed: eventsProcessed,
			TotalEvents:     totalEvents,
		}
		if startedAtMs.Valid {
			progress.StartedAt = time.UnixMilli(startedAtMs.Int64)
		}
		state.Progress = progress
	}
	return state, nil
}

func (m *Monitor) UpdateProgress(name string, progress *store.RebuildProgress) error {
	var startedAt int64
	if progress != nil && !progress.StartedAt.IsZero() {
		startedAt = progress.StartedAt.UnixMilli()
	}
	res, err := m.db.Exec(
		`UPDATE projection_monitor SET events_processed = ?, total_events = ?, started_at = ?, updated_at = ?
		 WHERE name = ?`,
		progress.EventsProcessed, progress.TotalEvents, startedAt, time.Now().UnixMilli(), name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update progress for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update progress for %s: %w", name, err)
	}
	if n == 0 {
		return store.ErrProjectionNotFound
	}
	return nil
}

var _ store.ProjectionMonitor = (*Monitor)(nil)
