package bus

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
)

// TxRunner is the transaction boundary every dispatch runs inside. When fn
// returns an error the boundary rolls back and the error propagates to the
// dispatcher.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Passthrough runs fn without any transaction. Useful for tests and for
// hosts that manage transactions elsewhere.
type Passthrough struct{}

func (Passthrough) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// BunTxRunner opens a bun transaction per dispatch and carries it in the
// context so repositories called by handlers join it.
type BunTxRunner struct {
	db   *bun.DB
	opts *sql.TxOptions
}

// NewBunTxRunner wraps a bun database as the dispatch transaction boundary.
func NewBunTxRunner(db *bun.DB) *BunTxRunner {
	return &BunTxRunner{db: db}
}

func (r *BunTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.RunInTx(ctx, r.opts, func(txCtx context.Context, tx bun.Tx) error {
		return fn(ContextWithTx(txCtx, tx))
	})
}

type txKey struct{}

// ContextWithTx stores the transaction handle for repositories downstream.
func ContextWithTx(ctx context.Context, tx bun.IDB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// IDBFrom returns the transaction carried by ctx, or fallback when the call
// happens outside a dispatch. A nil *bun.DB fallback yields a nil interface
// so callers can test for it.
func IDBFrom(ctx context.Context, fallback bun.IDB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.IDB); ok {
		return tx
	}
	if db, ok := fallback.(*bun.DB); ok && db == nil {
		return nil
	}
	return fallback
}
