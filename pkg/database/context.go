package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type contextKey string

const (
	// TxKey is the context key for an in-flight transaction.
	TxKey contextKey = "tx"
)

// TxFromContext retrieves the transaction from context.
// Returns nil and false if not present.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(TxKey).(pgx.Tx)
	return tx, ok
}

// SetTx stores a transaction in the context so repository calls made
// with the returned context run inside it.
func SetTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// QuerierFromContext returns the transaction stored in the context if
// one is present, otherwise the pool. Repositories resolve their
// querier through this so callers control the transaction boundary.
func QuerierFromContext(ctx context.Context, db *DB) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return db.Pool
}

// TxRunner runs a function inside a transaction boundary. *DB is the
// production implementation; tests substitute a pass-through.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// WithTx runs fn inside a single transaction. The transaction is stored
// in the context passed to fn; any repository call using that context
// joins it. Commit on nil return, rollback otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// Join an in-flight transaction instead of nesting.
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(SetTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
