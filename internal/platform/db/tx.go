package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// TxKey is the context key under which an open transaction is stored.
const TxKey contextKey = "db_tx"

// TxFromContext retrieves the transaction from context, or nil if the
// caller is not running inside WithTx.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(TxKey).(pgx.Tx)
	return tx
}

// TxRunner executes fn inside a transaction boundary. The production
// implementation is WithTx over a pgx pool; tests substitute a pass-through.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// WithTx returns a TxRunner that begins a transaction on pool, stores it in
// the context for repositories to pick up via TxFromContext, and commits
// only if fn returns nil. Any error rolls the whole transaction back, so
// multi-store mutations are all-or-nothing.
func WithTx(pool *pgxpool.Pool) TxRunner {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(context.WithValue(ctx, TxKey, tx)); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	}
}

// PassthroughTx is a TxRunner for tests and in-memory repositories: it runs
// fn directly with no transaction semantics.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
