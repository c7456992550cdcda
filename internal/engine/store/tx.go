package store

import (
	"context"
	"database/sql"
	"fmt"
)

// TxManager runs functions inside a database transaction. Mutations and
// their change records go through this so both persist or neither does.
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a transaction manager over the given database.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// WithTransaction begins a transaction, runs fn, and commits. Any error
// from fn rolls the transaction back and is returned unchanged.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return ConvertDBError(err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", ConvertDBError(err))
	}

	return nil
}
