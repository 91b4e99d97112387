package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
	"github.com/roach88/closuretree/internal/querysql"
)

// insertChunkRows bounds the rows per INSERT statement so the parameter
// count stays below every supported driver's limit.
const insertChunkRows = 300

// Querier executes QueryIR statements. Both *Store (autocommit) and *Tx
// implement it, so planners and node layers work inside or outside a
// transaction.
type Querier interface {
	// Query runs a Select and returns one IRObject per row, keyed by
	// result column name. Returns an empty slice (not nil) for no rows.
	Query(ctx context.Context, q queryir.Query) ([]ir.IRObject, error)

	// Exec runs an Insert, Update or Delete and returns rows affected.
	// Inserts are split into chunks transparently.
	Exec(ctx context.Context, q queryir.Query) (int64, error)

	// Schema returns the table configuration.
	Schema() ir.Schema

	// Dialect reports the SQL dialect.
	Dialect() querysql.Dialect
}

// conn is the subset of *sql.DB and *sql.Tx the runner needs.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Query implements Querier.
func (s *Store) Query(ctx context.Context, q queryir.Query) ([]ir.IRObject, error) {
	return runQuery(ctx, s.db, s.compiler, q)
}

// Exec implements Querier.
func (s *Store) Exec(ctx context.Context, q queryir.Query) (int64, error) {
	return runExec(ctx, s.db, s.compiler, q)
}

func runQuery(ctx context.Context, c conn, compiler *querysql.Compiler, q queryir.Query) ([]ir.IRObject, error) {
	stmt, args, err := compiler.Compile(q)
	if err != nil {
		return nil, ir.NewInvalidArgument("store.query", err.Error())
	}

	rows, err := c.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify("store.query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify("store.query", err)
	}

	result := []ir.IRObject{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify("store.scan", err)
		}
		obj := make(ir.IRObject, len(cols))
		for i, name := range cols {
			v, err := ir.FromSQL(values[i])
			if err != nil {
				return nil, ir.NewStorageError("store.scan", fmt.Errorf("column %s: %w", name, err), false)
			}
			obj[name] = v
		}
		result = append(result, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("store.query", err)
	}
	return result, nil
}

func runExec(ctx context.Context, c conn, compiler *querysql.Compiler, q queryir.Query) (int64, error) {
	if ins, ok := insertOf(q); ok && len(ins.Rows) > insertChunkRows {
		var total int64
		for start := 0; start < len(ins.Rows); start += insertChunkRows {
			chunk := ins
			chunk.Rows = ins.Rows[start:min(start+insertChunkRows, len(ins.Rows))]
			n, err := runExec(ctx, c, compiler, chunk)
			if err != nil {
				return total, err
			}
			total += n
		}
		return total, nil
	}

	switch q.(type) {
	case queryir.Select, *queryir.Select:
		return 0, ir.NewInvalidArgument("store.exec", "select passed to Exec")
	}

	stmt, args, err := compiler.Compile(q)
	if err != nil {
		return 0, ir.NewInvalidArgument("store.exec", err.Error())
	}
	res, err := c.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, classify("store.exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("store.exec", err)
	}
	return n, nil
}

func insertOf(q queryir.Query) (queryir.Insert, bool) {
	switch ins := q.(type) {
	case queryir.Insert:
		return ins, true
	case *queryir.Insert:
		return *ins, true
	default:
		return queryir.Insert{}, false
	}
}
