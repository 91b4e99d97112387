package store

import (
	"context"
	"fmt"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
)

// ClosureTable is transactional CRUD over the closure relation.
// It knows column names but nothing about tree semantics.
type ClosureTable struct {
	q      Querier
	schema ir.Schema
}

// Closure returns the closure table accessor for q.
func Closure(q Querier) ClosureTable {
	return ClosureTable{q: q, schema: q.Schema()}
}

func (c ClosureTable) columns() []string {
	return []string{c.schema.AncestorColumn, c.schema.DescendantColumn, c.schema.DepthColumn}
}

// Insert bulk-inserts rows. Duplicate pairs violate the primary key and
// fail with a constraint STORAGE_ERROR.
func (c ClosureTable) Insert(ctx context.Context, rows []ir.ClosureRow) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([][]ir.IRValue, len(rows))
	for i, r := range rows {
		values[i] = []ir.IRValue{ir.IRString(r.Ancestor), ir.IRString(r.Descendant), ir.IRInt(r.Depth)}
	}
	_, err := c.q.Exec(ctx, queryir.Insert{
		Table:   c.schema.ClosureTable,
		Columns: c.columns(),
		Rows:    values,
	})
	if err != nil {
		return fmt.Errorf("insert closure rows: %w", err)
	}
	return nil
}

// Delete removes every row matching pred and returns the count.
func (c ClosureTable) Delete(ctx context.Context, pred queryir.Predicate) (int64, error) {
	n, err := c.q.Exec(ctx, queryir.Delete{Table: c.schema.ClosureTable, Filter: pred})
	if err != nil {
		return 0, fmt.Errorf("delete closure rows: %w", err)
	}
	return n, nil
}

// Select returns every row matching pred (nil = all rows), ordered by
// depth, ancestor, descendant.
func (c ClosureTable) Select(ctx context.Context, pred queryir.Predicate) ([]ir.ClosureRow, error) {
	q := queryir.Select{
		From: queryir.Table{Name: c.schema.ClosureTable},
		Columns: []queryir.Column{
			{Name: c.schema.AncestorColumn, As: "ancestor"},
			{Name: c.schema.DescendantColumn, As: "descendant"},
			{Name: c.schema.DepthColumn, As: "depth"},
		},
		Filter: pred,
		OrderBy: []queryir.Order{
			{Column: queryir.Column{Name: c.schema.DepthColumn}},
			{Column: queryir.Column{Name: c.schema.AncestorColumn}, Binary: true},
			{Column: queryir.Column{Name: c.schema.DescendantColumn}, Binary: true},
		},
	}
	objs, err := c.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select closure rows: %w", err)
	}

	rows := make([]ir.ClosureRow, 0, len(objs))
	for _, obj := range objs {
		depth, _ := obj.Int("depth")
		rows = append(rows, ir.ClosureRow{
			Ancestor:   ir.NodeID(obj.String("ancestor")),
			Descendant: ir.NodeID(obj.String("descendant")),
			Depth:      int(depth),
		})
	}
	return rows, nil
}

// Exists reports whether any row matches pred.
func (c ClosureTable) Exists(ctx context.Context, pred queryir.Predicate) (bool, error) {
	rows, err := c.Select(ctx, pred)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}
