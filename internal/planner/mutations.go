package planner

import (
	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
)

// The predicates below address the closure table alone (unqualified
// columns) and are passed to store.Closure Select/Delete.

func (p *Planner) col(name string) queryir.Column {
	return queryir.Column{Name: name}
}

func (p *Planner) eq(column string, v ir.IRValue) queryir.Predicate {
	return queryir.Equals{Column: p.col(column), Value: v}
}

func (p *Planner) strict() queryir.Predicate {
	return queryir.Compare{Column: p.col(p.schema.DepthColumn), Op: queryir.OpGreater, Value: ir.IRInt(0)}
}

// SelfRow matches the depth-0 row of id.
func (p *Planner) SelfRow(id ir.NodeID) queryir.Predicate {
	return queryir.AllOf(
		p.eq(p.schema.AncestorColumn, ir.IRString(id)),
		p.eq(p.schema.DescendantColumn, ir.IRString(id)),
	)
}

// AncestorChain matches every row ending at id: its ancestors and its own
// self row at depth 0.
func (p *Planner) AncestorChain(id ir.NodeID) queryir.Predicate {
	return p.eq(p.schema.DescendantColumn, ir.IRString(id))
}

// StrictAncestors matches the rows linking id to the nodes above it.
func (p *Planner) StrictAncestors(id ir.NodeID) queryir.Predicate {
	return queryir.AllOf(p.eq(p.schema.DescendantColumn, ir.IRString(id)), p.strict())
}

// ParentLink matches the depth-1 row above id.
func (p *Planner) ParentLink(id ir.NodeID) queryir.Predicate {
	return queryir.AllOf(
		p.eq(p.schema.DescendantColumn, ir.IRString(id)),
		p.eq(p.schema.DepthColumn, ir.IRInt(1)),
	)
}

// Subtree matches every row starting at id: id's self row and a row per
// descendant.
func (p *Planner) Subtree(id ir.NodeID) queryir.Predicate {
	return p.eq(p.schema.AncestorColumn, ir.IRString(id))
}

// InSubtree reports, for a candidate node id, whether target lies in the
// subtree of id (the row (id, target, d) exists).
func (p *Planner) InSubtree(id, target ir.NodeID) queryir.Predicate {
	return queryir.AllOf(
		p.eq(p.schema.AncestorColumn, ir.IRString(id)),
		p.eq(p.schema.DescendantColumn, ir.IRString(target)),
	)
}

func (p *Planner) subquery(column string, filter queryir.Predicate) queryir.Select {
	return queryir.Select{
		From:    queryir.Table{Name: p.schema.ClosureTable},
		Columns: []queryir.Column{p.col(column)},
		Filter:  filter,
	}
}

// Sever matches every row whose descendant is in id's subtree and whose
// ancestor is strictly above id: the links a move must cut. Rows inside
// the subtree are untouched.
func (p *Planner) Sever(id ir.NodeID) queryir.Predicate {
	return queryir.AllOf(
		queryir.InQuery{
			Column: p.col(p.schema.DescendantColumn),
			Query:  p.subquery(p.schema.DescendantColumn, p.Subtree(id)),
		},
		queryir.InQuery{
			Column: p.col(p.schema.AncestorColumn),
			Query:  p.subquery(p.schema.AncestorColumn, p.StrictAncestors(id)),
		},
	)
}

// Purge matches every row whose descendant is in id's subtree, which
// covers every row that references a subtree node as ancestor too.
func (p *Planner) Purge(id ir.NodeID) queryir.Predicate {
	return queryir.InQuery{
		Column: p.col(p.schema.DescendantColumn),
		Query:  p.subquery(p.schema.DescendantColumn, p.Subtree(id)),
	}
}
