package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
	"github.com/roach88/closuretree/internal/querysql"
)

// Tx is an open transaction. It is only valid inside the WithTransaction
// callback that received it.
type Tx struct {
	tx    *sql.Tx
	store *Store
}

// Query implements Querier.
func (t *Tx) Query(ctx context.Context, q queryir.Query) ([]ir.IRObject, error) {
	return runQuery(ctx, t.tx, t.store.compiler, q)
}

// Exec implements Querier.
func (t *Tx) Exec(ctx context.Context, q queryir.Query) (int64, error) {
	return runExec(ctx, t.tx, t.store.compiler, q)
}

// Schema implements Querier.
func (t *Tx) Schema() ir.Schema { return t.store.schema }

// Dialect implements Querier.
func (t *Tx) Dialect() querysql.Dialect { return t.store.dialect }

// txOptions returns the isolation every mutation needs: repeatable read
// or stronger. SQLite transactions are serializable already and are
// opened IMMEDIATE through the DSN; go-sqlite3 rejects explicit levels.
func (s *Store) txOptions() *sql.TxOptions {
	if s.dialect == querysql.Postgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	}
	return nil
}

// WithTransaction runs fn inside one transaction.
//
// The transaction commits when fn returns nil and rolls back on every other
// exit path: a returned error, a failed commit, or a panic inside fn (which
// is re-raised after the rollback). Errors from fn are returned unchanged;
// begin/commit failures are STORAGE_ERROR.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, s.txOptions())
	if err != nil {
		return classify("begin", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err := fn(&Tx{tx: sqlTx, store: s}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit", fmt.Errorf("commit: %w", err))
	}
	committed = true
	return nil
}
