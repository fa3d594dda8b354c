package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/plaenen/projector/pkg/domain"
	"github.com/plaenen/projector/pkg/store"
)

// ControlStore is a SQLite-backed store.ControlStore, store.LockStore, and
// store.ProjectionManager: all three read and write the same
// projection_control row, so this one type implements all three interfaces.
type ControlStore struct {
	db *sql.DB
}

// NewControlStore wraps an existing *sql.DB, typically shared with an
// EventStore via EventStore.DB().
func NewControlStore(db *sql.DB) *ControlStore {
	return &ControlStore{db: db}
}

func (s *ControlStore) Exists(ctx context.Context, name string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projection_control WHERE name = ?`, name).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: control exists: %w", err)
	}
	return true, nil
}

func (s *ControlStore) Create(ctx context.Context, name string, status store.Status) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projection_control (name, position, state, status) VALUES (?, '{}', NULL, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, string(status),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create control row %s: %w", name, err)
	}
	return nil
}

func (s *ControlStore) Load(ctx context.Context, name string) (domain.Positions, json.RawMessage, error) {
	var positionJSON string
	var state sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT position, state FROM projection_control WHERE name = ?`, name,
	).Scan(&positionJSON, &state)
	if err == sql.ErrNoRows {
		return nil, nil, store.ErrProjectionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: load control row %s: %w", name, err)
	}

	var position domain.Positions
	if err := json.Unmarshal([]byte(positionJSON), &position); err != nil {
		return nil, nil, fmt.Errorf("sqlite: unmarshal position for %s: %w", name, err)
	}

	var raw json.RawMessage
	if state.Valid {
		raw = json.RawMessage(state.String)
	}
	return position, raw, nil
}

func (s *ControlStore) Persist(ctx context.Context, name string, lockedUntil time.Time, state json.RawMessage, position domain.Positions) error {
	positionJSON, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("sqlite: marshal position for %s: %w", name, err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE projection_control SET position = ?, state = ?, locked_until = ? WHERE name = ?`,
		string(positionJSON), nullableJSON(state), lockedUntil.UnixMilli(), name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: persist control row %s: %w", name, err)
	}
	return affectedExactlyOne(res, name)
}

func (s *ControlStore) UpdateStatus(ctx context.Context, name string, status store.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projection_control SET status = ? WHERE name = ?`, string(status), name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: update status for %s: %w", name, err)
	}
	return affectedExactlyOne(res, name)
}

func (s *ControlStore) ClearLock(ctx context.Context, name string, status store.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projection_control SET locked_until = NULL, status = ? WHERE name = ?`,
		string(status), name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: clear lock for %s: %w", name, err)
	}
	return affectedExactlyOne(res, name)
}

func (s *ControlStore) DeleteRow(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projection_control WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("sqlite: delete control row %s: %w", name, err)
	}
	return affectedExactlyOne(res, name)
}

// AcquireLock takes the lock for name if it is currently nil or expired.
// The row must already exist (ensureControlRow runs before acquireLock in
// the engine's run sequence); a missing row is reported as a failed
// acquisition rather than ErrProjectionNotFound, since "no row" and "row
// locked by someone else" are both "you may not proceed" to a caller that,
// per spec, MUST check the returned bool.
func (s *ControlStore) AcquireLock(ctx context.Context, name string, until time.Time) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE projection_control SET locked_until = ?
		 WHERE name = ? AND (locked_until IS NULL OR locked_until < ?)`,
		until.UnixMilli(), name, now,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: acquire lock for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: acquire lock for %s: %w", name, err)
	}
	return n == 1, nil
}

func (s *ControlStore) RefreshLock(ctx context.Context, name string, until time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projection_control SET locked_until = ? WHERE name = ?`,
		until.UnixMilli(), name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: refresh lock for %s: %w", name, err)
	}
	return affectedExactlyOne(res, name)
}

func (s *ControlStore) FetchProjectionStatus(ctx context.Context, name string) (store.Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM projection_control WHERE name = ?`, name).Scan(&status)
	if err == sql.ErrNoRows {
		return store.StatusIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: fetch status for %s: %w", name, err)
	}
	return store.Status(status), nil
}

func (s *ControlStore) IdleProjection(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE projection_control SET status = ? WHERE name = ?`, string(store.StatusIdle), name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: idle projection %s: %w", name, err)
	}
	return nil
}

func (s *ControlStore) FetchAllStreamNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM streams WHERE name NOT LIKE '$%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch all stream names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: fetch all stream names: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func affectedExactlyOne(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for %s: %w", name, err)
	}
	if n == 0 {
		return store.ErrProjectionNotFound
	}
	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var (
	_ store.ControlStore      = (*ControlStore)(nil)
	_ store.LockStore         = (*ControlStore)(nil)
	_ store.ProjectionManager = (*ControlStore)(nil)
)
