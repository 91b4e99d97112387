// Package planner builds the queryir descriptors for every hierarchy read
// and every closure mutation predicate.
//
// The planner never produces SQL text. Its output is compiled per dialect
// by querysql and executed by store.
//
// Join shapes (n = node table, c = closure table):
//
//	upward   (parent, ancestors):      c.ancestor   = n.id, filter c.descendant = X
//	downward (children, descendants):  c.descendant = n.id, filter c.ancestor   = X
//	roots:    n ⋈ c on c.descendant = n.id, GROUP BY n, HAVING count(depth > 0) = 0
//	tree:     n ⋈ c on c.descendant = n.id (every ancestor row of every node)
package planner

import (
	"fmt"
	"slices"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
)

// Table aliases used in every plan.
const (
	nodeAlias    = "n"
	closureAlias = "c"
	scopeAlias   = "s"
)

// Result column names. Node attributes keep their own column names.
const (
	ColNodeID       = "node_id"
	ColNodePosition = "node_position"
	ColAncestor     = "ancestor"
	ColDescendant   = "descendant"
	ColDepth        = "depth"
)

var reserved = []string{ColNodeID, ColNodePosition, ColAncestor, ColDescendant, ColDepth}

// Planner builds queries against one Schema.
type Planner struct {
	schema ir.Schema
}

// New returns a Planner for schema. Attribute names may not collide with
// the fixed result column names.
func New(schema ir.Schema) (*Planner, error) {
	schema = schema.WithDefaults()
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	for _, attr := range schema.Attributes {
		if slices.Contains(reserved, attr) {
			return nil, ir.NewInvalidArgument("schema", fmt.Sprintf("attribute %q collides with a result column", attr))
		}
		if attr == schema.IDColumn || attr == schema.PositionColumn {
			return nil, ir.NewInvalidArgument("schema", fmt.Sprintf("attribute %q duplicates the id or position column", attr))
		}
	}
	return &Planner{schema: schema}, nil
}

// Schema returns the schema the planner was built for.
func (p *Planner) Schema() ir.Schema {
	return p.schema
}

func (p *Planner) nodeColumns() []queryir.Column {
	cols := []queryir.Column{
		queryir.Col(nodeAlias, p.schema.IDColumn).Named(ColNodeID),
		queryir.Col(nodeAlias, p.schema.PositionColumn).Named(ColNodePosition),
	}
	for _, attr := range p.schema.Attributes {
		cols = append(cols, queryir.Col(nodeAlias, attr))
	}
	return cols
}

func (p *Planner) closureColumns(alias string) []queryir.Column {
	return []queryir.Column{
		queryir.Col(alias, p.schema.AncestorColumn).Named(ColAncestor),
		queryir.Col(alias, p.schema.DescendantColumn).Named(ColDescendant),
		queryir.Col(alias, p.schema.DepthColumn).Named(ColDepth),
	}
}

func (p *Planner) nodeTable() queryir.Table {
	return queryir.Table{Name: p.schema.NodeTable, Alias: nodeAlias}
}

// join attaches a closure alias to the node table on the given closure column.
func (p *Planner) join(alias, column string) queryir.Join {
	return queryir.Join{
		Table: queryir.Table{Name: p.schema.ClosureTable, Alias: alias},
		On: queryir.ColumnEquals{
			Left:  queryir.Col(alias, column),
			Right: queryir.Col(nodeAlias, p.schema.IDColumn),
		},
	}
}

func (p *Planner) upward() queryir.Join   { return p.join(closureAlias, p.schema.AncestorColumn) }
func (p *Planner) downward() queryir.Join { return p.join(closureAlias, p.schema.DescendantColumn) }

func (p *Planner) cEq(column string, v ir.IRValue) queryir.Predicate {
	return queryir.Equals{Column: queryir.Col(closureAlias, column), Value: v}
}

func (p *Planner) depthIs(d int) queryir.Predicate {
	return p.cEq(p.schema.DepthColumn, ir.IRInt(d))
}

func (p *Planner) depthAbove(d int) queryir.Predicate {
	return queryir.Compare{Column: queryir.Col(closureAlias, p.schema.DepthColumn), Op: queryir.OpGreater, Value: ir.IRInt(d)}
}

// siblingOrder orders by position with the id as a byte-wise tiebreaker.
func (p *Planner) siblingOrder() []queryir.Order {
	return []queryir.Order{
		{Column: queryir.Col(nodeAlias, p.schema.PositionColumn)},
		{Column: queryir.Col(nodeAlias, p.schema.IDColumn), Binary: true},
	}
}

// Records decodes rows produced by any node-returning plan.
// Closure metadata is attached when the row carries closure columns.
func (p *Planner) Records(rows []ir.IRObject) ([]ir.NodeRecord, error) {
	out := make([]ir.NodeRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := p.Record(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Record decodes one row.
func (p *Planner) Record(row ir.IRObject) (ir.NodeRecord, error) {
	id := row.String(ColNodeID)
	if id == "" {
		return ir.NodeRecord{}, fmt.Errorf("missing %s", ColNodeID)
	}
	pos, ok := row.Int(ColNodePosition)
	if !ok {
		return ir.NodeRecord{}, fmt.Errorf("node %s: missing %s", id, ColNodePosition)
	}
	rec := ir.NodeRecord{ID: ir.NodeID(id), Position: int(pos)}

	if len(p.schema.Attributes) > 0 {
		rec.Attributes = make(ir.IRObject, len(p.schema.Attributes))
		for _, attr := range p.schema.Attributes {
			if v, ok := row[attr]; ok {
				rec.Attributes[attr] = v
			} else {
				rec.Attributes[attr] = ir.IRNull{}
			}
		}
	}

	if _, ok := row[ColAncestor]; ok {
		depth, _ := row.Int(ColDepth)
		rec.Closure = &ir.ClosureMetadata{
			Ancestor:   ir.NodeID(row.String(ColAncestor)),
			Descendant: ir.NodeID(row.String(ColDescendant)),
			Depth:      int(depth),
		}
	}
	return rec, nil
}
