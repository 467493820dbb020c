package sqlite

import (
	"context"
	"fmt"

	"github.com/compopedia/compopedia/internal/repository"
)

// WithTx runs fn inside a transaction and commits when fn returns nil. An
// error from fn, or a panic, rolls the transaction back; panics are re-raised
// after the rollback.
//
// Calling WithTx on a Store that is already transaction-bound runs fn in the
// existing transaction, so services can compose transactional helpers.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) (err error) {
	if db.inTx {
		return fn(ctx, db)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("sqlite: committing transaction: %w", cerr)
		}
	}()

	return fn(ctx, &DB{conn: db.conn, q: tx, inTx: true})
}
