package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// ext is the subset of *sqlx.DB and *sqlx.Tx every query needs, letting
// every method run unmodified whether or not it is inside a transaction.
type ext interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// conn returns the transaction carried on ctx, or the Store's pooled *sqlx.DB
// if none is active. This is how every query method stays oblivious to
// whether it's running inside WithTx.
func (s *Store) conn(ctx context.Context) ext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn within a single transaction (the driver's default BEGIN,
// then COMMIT). Open limits the Store to one connection, so a transaction
// holds the only connection from BEGIN to COMMIT and every multi-step update
// the executor makes (reserve + record + transition, for example) serializes
// through this single-writer path rather than interleaving across
// goroutines. A context already carrying a transaction is reused rather
// than nested.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
