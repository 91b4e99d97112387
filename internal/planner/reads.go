package planner

import (
	"slices"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
)

// Node selects a single hierarchy node through its self row.
// Nodes without a self row are not part of the hierarchy.
func (p *Planner) Node(id ir.NodeID) queryir.Select {
	return queryir.Select{
		From:    p.nodeTable(),
		Joins:   []queryir.Join{p.downward()},
		Columns: p.nodeColumns(),
		Filter: queryir.AllOf(
			p.cEq(p.schema.AncestorColumn, ir.IRString(id)),
			p.cEq(p.schema.DescendantColumn, ir.IRString(id)),
		),
	}
}

// Nodes selects every hierarchy node (one row per self row).
func (p *Planner) Nodes() queryir.Select {
	return queryir.Select{
		From:    p.nodeTable(),
		Joins:   []queryir.Join{p.downward()},
		Columns: p.nodeColumns(),
		Filter:  p.depthIs(0),
		OrderBy: p.siblingOrder(),
	}
}

// Parent selects the node one level above id.
func (p *Planner) Parent(id ir.NodeID) queryir.Select {
	return queryir.Select{
		From:    p.nodeTable(),
		Joins:   []queryir.Join{p.upward()},
		Columns: append(p.nodeColumns(), p.closureColumns(closureAlias)...),
		Filter: queryir.AllOf(
			p.cEq(p.schema.DescendantColumn, ir.IRString(id)),
			p.depthIs(1),
		),
	}
}

// Ancestors selects every node above id, nearest first.
func (p *Planner) Ancestors(id ir.NodeID) queryir.Select {
	return queryir.Select{
		From:    p.nodeTable(),
		Joins:   []queryir.Join{p.upward()},
		Columns: append(p.nodeColumns(), p.closureColumns(closureAlias)...),
		Filter: queryir.AllOf(
			p.cEq(p.schema.DescendantColumn, ir.IRString(id)),
			p.depthAbove(0),
		),
		OrderBy: []queryir.Order{{Column: queryir.Col(closureAlias, p.schema.DepthColumn)}},
	}
}

// Children selects the direct children of id ordered by position. Extra
// predicates over the node columns narrow the result.
func (p *Planner) Children(id ir.NodeID, extra ...queryir.Predicate) queryir.Select {
	preds := []queryir.Predicate{
		p.cEq(p.schema.AncestorColumn, ir.IRString(id)),
		p.depthIs(1),
	}
	return queryir.Select{
		From:    p.nodeTable(),
		Joins:   []queryir.Join{p.downward()},
		Columns: append(p.nodeColumns(), p.closureColumns(closureAlias)...),
		Filter:  queryir.AllOf(append(preds, extra...)...),
		OrderBy: p.siblingOrder(),
	}
}

// Descendants selects every node below id. depth > 0 restricts the result
// to exactly that distance; depth <= 0 returns all levels.
func (p *Planner) Descendants(id ir.NodeID, depth int) queryir.Select {
	preds := []queryir.Predicate{
		p.cEq(p.schema.AncestorColumn, ir.IRString(id)),
		p.depthAbove(0),
	}
	if depth > 0 {
		preds = append(preds, p.depthIs(depth))
	}
	order := append([]queryir.Order{{Column: queryir.Col(closureAlias, p.schema.DepthColumn)}}, p.siblingOrder()...)
	return queryir.Select{
		From:    p.nodeTable(),
		Joins:   []queryir.Join{p.downward()},
		Columns: append(p.nodeColumns(), p.closureColumns(closureAlias)...),
		Filter:  queryir.AllOf(preds...),
		OrderBy: order,
	}
}

// Roots selects every node with no ancestor row at depth > 0, computed as
// a having-count-zero aggregation over each node's ancestor rows. Extra
// predicates over the node columns narrow the result.
func (p *Planner) Roots(extra ...queryir.Predicate) queryir.Select {
	cols := p.nodeColumns()
	group := make([]queryir.Column, len(cols))
	for i, c := range cols {
		group[i] = queryir.Col(c.Table, c.Name)
	}
	return queryir.Select{
		From:    p.nodeTable(),
		Joins:   []queryir.Join{p.downward()},
		Columns: cols,
		Filter:  queryir.AllOf(extra...),
		GroupBy: group,
		Having:  queryir.CountWhere{Filter: p.depthAbove(0), Count: 0},
		OrderBy: p.siblingOrder(),
	}
}

// Siblings selects the other children of parent (or the other roots when
// parent is ir.NoParent), relative to the anchor node self at position pos.
// The direction must already be validated.
func (p *Planner) Siblings(parent, self ir.NodeID, pos int, dir ir.Direction) queryir.Select {
	id := queryir.Col(nodeAlias, p.schema.IDColumn)
	position := queryir.Col(nodeAlias, p.schema.PositionColumn)

	extra := []queryir.Predicate{
		queryir.Compare{Column: id, Op: queryir.OpNotEqual, Value: ir.IRString(self)},
	}
	switch dir {
	case ir.DirectionPrev:
		extra = append(extra, queryir.Compare{Column: position, Op: queryir.OpLess, Value: ir.IRInt(pos)})
	case ir.DirectionNext:
		extra = append(extra, queryir.Compare{Column: position, Op: queryir.OpGreater, Value: ir.IRInt(pos)})
	case ir.DirectionBoth:
		extra = append(extra, queryir.Compare{Column: position, Op: queryir.OpNotEqual, Value: ir.IRInt(pos)})
	}

	if parent == ir.NoParent {
		return p.Roots(extra...)
	}
	return p.Children(parent, extra...)
}

// AtPosition narrows Children or Roots to one position.
func (p *Planner) AtPosition(pos int) queryir.Predicate {
	return queryir.Equals{Column: queryir.Col(nodeAlias, p.schema.PositionColumn), Value: ir.IRInt(pos)}
}

// PositionBetween narrows Children or Roots to positions in [from, to].
func (p *Planner) PositionBetween(from, to int) queryir.Predicate {
	position := queryir.Col(nodeAlias, p.schema.PositionColumn)
	return queryir.AllOf(
		queryir.Compare{Column: position, Op: queryir.OpGreaterEq, Value: ir.IRInt(from)},
		queryir.Compare{Column: position, Op: queryir.OpLessEq, Value: ir.IRInt(to)},
	)
}

// NodeEquals builds a predicate on a node column for use as a Tree filter.
func (p *Planner) NodeEquals(column string, v ir.IRValue) queryir.Predicate {
	return queryir.Equals{Column: queryir.Col(nodeAlias, column), Value: v}
}

// Tree selects every node joined to each of its ancestor rows (self row
// included), the flat shape treebuild consumes. filter, if non-nil, is an
// external predicate over node columns (alias "n").
func (p *Planner) Tree(filter queryir.Predicate) queryir.Select {
	return p.tree(nil, filter)
}

// DescendantsTree is Tree restricted to the subtree rooted at id.
func (p *Planner) DescendantsTree(id ir.NodeID) queryir.Select {
	scope := p.join(scopeAlias, p.schema.DescendantColumn)
	return p.tree(&scope, queryir.Equals{Column: queryir.Col(scopeAlias, p.schema.AncestorColumn), Value: ir.IRString(id)})
}

// AncestorsTree is Tree restricted to id and its ancestors.
func (p *Planner) AncestorsTree(id ir.NodeID) queryir.Select {
	scope := p.join(scopeAlias, p.schema.AncestorColumn)
	return p.tree(&scope, queryir.Equals{Column: queryir.Col(scopeAlias, p.schema.DescendantColumn), Value: ir.IRString(id)})
}

func (p *Planner) tree(scope *queryir.Join, filter queryir.Predicate) queryir.Select {
	joins := []queryir.Join{p.downward()}
	if scope != nil {
		joins = append(joins, *scope)
	}
	order := slices.Concat(p.siblingOrder(), []queryir.Order{{Column: queryir.Col(closureAlias, p.schema.DepthColumn)}})
	return queryir.Select{
		From:    p.nodeTable(),
		Joins:   joins,
		Columns: append(p.nodeColumns(), p.closureColumns(closureAlias)...),
		Filter:  filter,
		OrderBy: order,
	}
}
