package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/store"
)

// EventStore is a SQLite-backed store.EventStore. Streams are append-only;
// each event's position within its own stream (stream_no) is assigned under
// the same transaction as the insert, and a global, monotonically
// increasing sequence (global_seq) gives MergeAndLoad a stable merge order
// across streams.
type EventStore struct {
	db *sql.DB
}

// NewEventStore opens dsn and returns an EventStore backed by it.
func NewEventStore(dsn string) (*EventStore, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return &EventStore{db: db}, nil
}

// DB exposes the underlying connection pool, e.g. for a read model sharing
// the same database file.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *EventStore) Close() error {
	return s.db.Close()
}

func (s *EventStore) HasStream(ctx context.Context, name string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM streams WHERE name = ?`, name).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: has stream: %w", err)
	}
	return true, nil
}

func (s *EventStore) CreateStream(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streams (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create stream %s: %w", name, err)
	}
	return nil
}

func (s *EventStore) DeleteStream(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: delete stream %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE stream = ?`, name); err != nil {
		return fmt.Errorf("sqlite: delete stream %s events: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM streams WHERE name = ?`, name); err != nil {
		return fmt.Errorf("sqlite: delete stream %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *EventStore) AppendTo(ctx context.Context, name string, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: append to %s: %w", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO streams (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("sqlite: append to %s: ensure stream: %w", name, err)
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(stream_no), 0) + 1 FROM events WHERE stream = ?`, name,
	).Scan(&next); err != nil {
		return fmt.Errorf("sqlite: append to %s: next stream_no: %w", name, err)
	}

	for _, e := range events {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: append to %s: marshal metadata: %w", name, err)
		}
		if e.ID == "" {
			e.ID = fmt.Sprintf("%s-%d", name, next)
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now()
		}
		e.No = next
		e.Metadata.Stream = name

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, stream, stream_no, name, payload, metadata, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, name, e.No, e.Name, []byte(e.Payload), metadata, e.Timestamp.UnixMilli(),
		); err != nil {
			return fmt.Errorf("sqlite: append to %s: insert event: %w", name, err)
		}
		next++
	}

	return tx.Commit()
}

func (s *EventStore) StreamNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM streams WHERE name NOT LIKE '$%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stream names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: stream names: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// MergeAndLoad loads a chronologically merged view (by global_seq) across
// every query's stream, starting at FromNumber. Matching against
// Matcher.Custom happens in Go, since it is an arbitrary predicate; matching
// against Matcher.EventNames is pushed into the SQL so a narrow filter can
// skip rows entirely.
func (s *EventStore) MergeAndLoad(ctx context.Context, queries []store.StreamQuery) (store.EventIterator, error) {
	if len(queries) == 0 {
		return &eventIterator{rows: nil}, nil
	}

	var clauses []string
	var args []any
	matchers := make(map[string]*domain.Matcher, len(queries))

	for _, q := range queries {
		matchers[q.Stream] = q.Matcher
		clause := "(stream = ? AND stream_no >= ?"
		clauseArgs := []any{q.Stream, q.FromNumber}
		if q.Matcher != nil && len(q.Matcher.EventNames) > 0 {
			placeholders := make([]string, len(q.Matcher.EventNames))
			for i, n := range q.Matcher.EventNames {
				placeholders[i] = "?"
				clauseArgs = append(clauseArgs, n)
			}
			clause += fmt.Sprintf(" AND name IN (%s)", strings.Join(placeholders, ","))
		}
		clause += ")"
		clauses = append(clauses, clause)
		args = append(args, clauseArgs...)
	}

	query := fmt.Sprintf(
		`SELECT id, stream, stream_no, name, payload, metadata, timestamp FROM events WHERE %s ORDER BY global_seq ASC`,
		strings.Join(clauses, " OR "),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: merge and load: %w", err)
	}
	return &eventIterator{rows: rows, matchers: matchers}, nil
}

type eventIterator struct {
	rows     *sql.Rows
	matchers map[string]*domain.Matcher
	current  *domain.Event
	err      error
}

func (it *eventIterator) Next() bool {
	if it.rows == nil {
		return false
	}
	for it.rows.Next() {
		var (
			id, stream, name string
			streamNo          int64
			payload, metadata []byte
			timestampMs       int64
		)
		if err := it.rows.Scan(&id, &stream, &streamNo, &name, &payload, &metadata, &timestampMs); err != nil {
			it.err = fmt.Errorf("sqlite: scan event: %w", err)
			return false
		}

		var meta domain.EventMetadata
		if err := json.Unmarshal(metadata, &meta); err != nil {
			it.err = fmt.Errorf("sqlite: unmarshal event metadata: %w", err)
			return false
		}
		meta.Stream = stream

		event := &domain.Event{
			ID:        id,
			No:        streamNo,
			Name:      name,
			Payload:   json.RawMessage(payload),
			Metadata:  meta,
			Timestamp: time.UnixMilli(timestampMs),
		}

		if m := it.matchers[stream]; m != nil && !m.Matches(event) {
			continue
		}

		it.current = event
		return true
	}
	it.err = it.rows.Err()
	return false
}

func (it *eventIterator) Event() *domain.Event { return it.current }
func (it *eventIterator) Err() error           { return it.err }

func (it *eventIterator) Close() error {
	if it.rows == nil {
		return nil
	}
	return it.rows.Close()
}

var (
	_ store.EventStore    = (*EventStore)(nil)
	_ store.EventIterator = (*eventIterator)(nil)
)
