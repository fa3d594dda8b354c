package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plaenen/projector/pkg/store"
)

// TxReadModel is a reusable store.ReadModel base for projections whose
// derived data lives in the same SQLite database as the event store. A
// batch of handler calls runs inside one transaction, opened lazily on
// first use and committed by Persist — mirroring the transactional handler
// wrapper pattern, generalized from a per-handler wrapper to a per-batch
// one so it composes with the engine's own batching.
type TxReadModel struct {
	db    *sql.DB
	name  string
	tx    *sql.Tx
	setup func(ctx context.Context, db *sql.DB) error
	drop  func(ctx context.Context, db *sql.DB) error
}

// NewTxReadModel wraps db. name identifies this read model's own init
// marker, distinct from the event store's schema_migrations table. setup
// creates the read model's schema; Init calls it, and Reset calls it again
// after drop. drop tears the schema down entirely; Delete and Reset call it.
func NewTxReadModel(db *sql.DB, name string, setup, drop func(ctx context.Context, db *sql.DB) error) *TxReadModel {
	return &TxReadModel{db: db, name: name, setup: setup, drop: drop}
}

func (m *TxReadModel) ensureMarkerTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS read_model_init (name TEXT PRIMARY KEY)`)
	return err
}

type txContextKey struct{}

// TxFromContext extracts the batch's open transaction, if any has been
// started via WithTx.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx, ok
}

// WithTx lazily begins this read model's batch transaction and returns a
// context carrying it, for a handler to retrieve with TxFromContext. Call
// once per event inside a handler; the same transaction is reused for the
// rest of the batch until Persist commits it.
func (m *TxReadModel) WithTx(ctx context.Context) (context.Context, error) {
	if m.tx == nil {
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return ctx, fmt.Errorf("sqlite: begin read model tx: %w", err)
		}
		m.tx = tx
	}
	return context.WithValue(ctx, txContextKey{}, m.tx), nil
}

func (m *TxReadModel) IsInitialized(ctx context.Context) (bool, error) {
	if err := m.ensureMarkerTable(ctx); err != nil {
		return false, fmt.Errorf("sqlite: read model IsInitialized: %w", err)
	}
	var exists int
	err := m.db.QueryRowContext(ctx,
		`SELECT 1 FROM read_model_init WHERE name = ?`, m.name,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: read model IsInitialized: %w", err)
	}
	return true, nil
}

func (m *TxReadModel) Init(ctx context.Context) error {
	if err := m.ensureMarkerTable(ctx); err != nil {
		return fmt.Errorf("sqlite: read model Init: %w", err)
	}
	if m.setup != nil {
		if err := m.setup(ctx, m.db); err != nil {
			return err
		}
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO read_model_init (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, m.name)
	return err
}

// Persist commits the batch's transaction, if one was opened. A batch that
// touched no rows (tx is nil) is a no-op.
func (m *TxReadModel) Persist(ctx context.Context) error {
	if m.tx == nil {
		return nil
	}
	err := m.tx.Commit()
	m.tx = nil
	if err != nil {
		return fmt.Errorf("sqlite: commit read model batch: %w", err)
	}
	return nil
}

func (m *TxReadModel) Reset(ctx context.Context) error {
	if m.tx != nil {
		m.tx.Rollback()
		m.tx = nil
	}
	if m.drop == nil || m.setup == nil {
		return nil
	}
	if err := m.drop(ctx, m.db); err != nil {
		return err
	}
	return m.setup(ctx, m.db)
}

func (m *TxReadModel) Delete(ctx context.Context) error {
	if m.tx != nil {
		m.tx.Rollback()
		m.tx = nil
	}
	if m.drop != nil {
		if err := m.drop(ctx, m.db); err != nil {
			return err
		}
	}
	_, err := m.db.ExecContext(ctx, `DELETE FROM read_model_init WHERE name = ?`, m.name)
	if err != nil {
		return fmt.Errorf("sqlite: clear read model marker: %w", err)
	}
	return nil
}

var _ store.ReadModel = (*TxReadModel)(nil)
