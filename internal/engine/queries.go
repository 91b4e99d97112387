package engine

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
	"github.com/roach88/closuretree/internal/store"
	"github.com/roach88/closuretree/internal/treebuild"
)

func (e *Engine) records(ctx context.Context, sel queryir.Select) ([]ir.NodeRecord, error) {
	return runRecords(ctx, e.store, e.planner, sel)
}

func (e *Engine) first(ctx context.Context, sel queryir.Select) (ir.NodeRecord, bool, error) {
	recs, err := e.records(ctx, sel)
	if err != nil || len(recs) == 0 {
		return ir.NodeRecord{}, false, err
	}
	return recs[0], true, nil
}

func (e *Engine) reader() *txn {
	return &txn{e: e, q: e.store}
}

// locate returns id's parent and position, or NOT_FOUND.
func (e *Engine) locate(ctx context.Context, op string, id ir.NodeID) (ir.NodeID, int, error) {
	r := e.reader()
	pos, err := r.positionOf(ctx, op, id)
	if err != nil {
		return "", 0, err
	}
	parent, err := r.parentOf(ctx, id)
	if err != nil {
		return "", 0, err
	}
	return parent, pos, nil
}

// Get returns the node record for id.
func (e *Engine) Get(ctx context.Context, id ir.NodeID) (ir.NodeRecord, error) {
	return observeRead(ctx, e, "get", []attribute.KeyValue{nodeAttr("node", id)}, func(ctx context.Context) (ir.NodeRecord, error) {
		rec, ok, err := e.first(ctx, e.planner.Node(id))
		if err != nil {
			return ir.NodeRecord{}, err
		}
		if !ok {
			return ir.NodeRecord{}, ir.NewNotFound("get", id)
		}
		return rec, nil
	})
}

// Parent returns id's parent. ok is false for a root or an unknown id.
func (e *Engine) Parent(ctx context.Context, id ir.NodeID) (rec ir.NodeRecord, ok bool, err error) {
	err = e.observe(ctx, "parent", []attribute.KeyValue{nodeAttr("node", id)}, func(ctx context.Context) error {
		rec, ok, err = e.first(ctx, e.planner.Parent(id))
		return err
	})
	return rec, ok, err
}

// Ancestors returns the nodes above id, nearest first. Each record carries
// the closure row it was reached through.
func (e *Engine) Ancestors(ctx context.Context, id ir.NodeID) ([]ir.NodeRecord, error) {
	return observeRead(ctx, e, "ancestors", []attribute.KeyValue{nodeAttr("node", id)}, func(ctx context.Context) ([]ir.NodeRecord, error) {
		return e.records(ctx, e.planner.Ancestors(id))
	})
}

// Children returns id's direct children in position order.
func (e *Engine) Children(ctx context.Context, id ir.NodeID) ([]ir.NodeRecord, error) {
	return observeRead(ctx, e, "children", []attribute.KeyValue{nodeAttr("node", id)}, func(ctx context.Context) ([]ir.NodeRecord, error) {
		return e.records(ctx, e.planner.Children(id))
	})
}

// Descendants returns the nodes below id, shallowest first. depth > 0
// restricts the result to exactly that distance.
func (e *Engine) Descendants(ctx context.Context, id ir.NodeID, depth int) ([]ir.NodeRecord, error) {
	attrs := []attribute.KeyValue{nodeAttr("node", id), attribute.Int("depth", depth)}
	return observeRead(ctx, e, "descendants", attrs, func(ctx context.Context) ([]ir.NodeRecord, error) {
		return e.records(ctx, e.planner.Descendants(id, depth))
	})
}

// Siblings returns the other children of id's parent (the other roots for
// a root) filtered by dir relative to id's position. An invalid direction
// fails before any query runs.
func (e *Engine) Siblings(ctx context.Context, id ir.NodeID, dir ir.Direction) ([]ir.NodeRecord, error) {
	if err := dir.Validate(); err != nil {
		return nil, err
	}
	attrs := []attribute.KeyValue{nodeAttr("node", id), attribute.String("direction", string(dir))}
	return observeRead(ctx, e, "siblings", attrs, func(ctx context.Context) ([]ir.NodeRecord, error) {
		parent, pos, err := e.locate(ctx, "siblings", id)
		if err != nil {
			return nil, err
		}
		return e.records(ctx, e.planner.Siblings(parent, id, pos, dir))
	})
}

// Roots returns every root in position order.
func (e *Engine) Roots(ctx context.Context) ([]ir.NodeRecord, error) {
	return observeRead(ctx, e, "roots", nil, func(ctx context.Context) ([]ir.NodeRecord, error) {
		return e.records(ctx, e.planner.Roots())
	})
}

// IsRoot reports whether id has no parent.
func (e *Engine) IsRoot(ctx context.Context, id ir.NodeID) (bool, error) {
	return observeRead(ctx, e, "is_root", []attribute.KeyValue{nodeAttr("node", id)}, func(ctx context.Context) (bool, error) {
		chain, err := store.Closure(e.store).Select(ctx, e.planner.AncestorChain(id))
		if err != nil {
			return false, err
		}
		if len(chain) == 0 {
			return false, ir.NewNotFound("is_root", id)
		}
		return len(chain) == 1, nil
	})
}

// Depth returns id's distance from its root (0 for a root).
func (e *Engine) Depth(ctx context.Context, id ir.NodeID) (int, error) {
	return observeRead(ctx, e, "depth", []attribute.KeyValue{nodeAttr("node", id)}, func(ctx context.Context) (int, error) {
		chain, err := store.Closure(e.store).Select(ctx, e.planner.AncestorChain(id))
		if err != nil {
			return 0, err
		}
		if len(chain) == 0 {
			return 0, ir.NewNotFound("depth", id)
		}
		// Rows are ordered by depth.
		return chain[len(chain)-1].Depth, nil
	})
}

// CountChildren returns the number of direct children of id.
func (e *Engine) CountChildren(ctx context.Context, id ir.NodeID) (int, error) {
	children, err := e.Children(ctx, id)
	return len(children), err
}

// HasChildren reports whether id has at least one child.
func (e *Engine) HasChildren(ctx context.Context, id ir.NodeID) (bool, error) {
	n, err := e.CountChildren(ctx, id)
	return n > 0, err
}

// ChildAt returns the child of id at pos.
func (e *Engine) ChildAt(ctx context.Context, id ir.NodeID, pos int) (rec ir.NodeRecord, ok bool, err error) {
	attrs := []attribute.KeyValue{nodeAttr("node", id), attribute.Int("position", pos)}
	err = e.observe(ctx, "child_at", attrs, func(ctx context.Context) error {
		rec, ok, err = e.first(ctx, e.planner.Children(id, e.planner.AtPosition(pos)))
		return err
	})
	return rec, ok, err
}

// FirstChild returns id's child with the lowest position.
func (e *Engine) FirstChild(ctx context.Context, id ir.NodeID) (ir.NodeRecord, bool, error) {
	children, err := e.Children(ctx, id)
	if err != nil || len(children) == 0 {
		return ir.NodeRecord{}, false, err
	}
	return children[0], true, nil
}

// LastChild returns id's child with the highest position.
func (e *Engine) LastChild(ctx context.Context, id ir.NodeID) (ir.NodeRecord, bool, error) {
	children, err := e.Children(ctx, id)
	if err != nil || len(children) == 0 {
		return ir.NodeRecord{}, false, err
	}
	return children[len(children)-1], true, nil
}

// ChildrenRange returns id's children with positions in [from, to].
func (e *Engine) ChildrenRange(ctx context.Context, id ir.NodeID, from, to int) ([]ir.NodeRecord, error) {
	attrs := []attribute.KeyValue{nodeAttr("node", id), attribute.Int("from", from), attribute.Int("to", to)}
	return observeRead(ctx, e, "children_range", attrs, func(ctx context.Context) ([]ir.NodeRecord, error) {
		return e.records(ctx, e.planner.Children(id, e.planner.PositionBetween(from, to)))
	})
}

// SiblingAt returns the node at pos among id's siblings, id included.
func (e *Engine) SiblingAt(ctx context.Context, id ir.NodeID, pos int) (rec ir.NodeRecord, ok bool, err error) {
	attrs := []attribute.KeyValue{nodeAttr("node", id), attribute.Int("position", pos)}
	err = e.observe(ctx, "sibling_at", attrs, func(ctx context.Context) error {
		parent, _, lerr := e.locate(ctx, "sibling_at", id)
		if lerr != nil {
			return lerr
		}
		sel := e.planner.Roots(e.planner.AtPosition(pos))
		if parent != ir.NoParent {
			sel = e.planner.Children(parent, e.planner.AtPosition(pos))
		}
		rec, ok, err = e.first(ctx, sel)
		return err
	})
	return rec, ok, err
}

// PrevSibling returns the sibling immediately before id.
func (e *Engine) PrevSibling(ctx context.Context, id ir.NodeID) (ir.NodeRecord, bool, error) {
	prev, err := e.Siblings(ctx, id, ir.DirectionPrev)
	if err != nil || len(prev) == 0 {
		return ir.NodeRecord{}, false, err
	}
	return prev[len(prev)-1], true, nil
}

// NextSibling returns the sibling immediately after id.
func (e *Engine) NextSibling(ctx context.Context, id ir.NodeID) (ir.NodeRecord, bool, error) {
	next, err := e.Siblings(ctx, id, ir.DirectionNext)
	if err != nil || len(next) == 0 {
		return ir.NodeRecord{}, false, err
	}
	return next[0], true, nil
}

// Tree returns the whole forest, or the nodes matching filter (a predicate
// over node columns, see planner.NodeEquals) nested by their closure rows.
func (e *Engine) Tree(ctx context.Context, filter queryir.Predicate) (*treebuild.Forest, error) {
	return observeRead(ctx, e, "tree", nil, func(ctx context.Context) (*treebuild.Forest, error) {
		return e.forest(ctx, e.planner.Tree(filter))
	})
}

// DescendantsTree returns the subtree rooted at id as a one-root forest.
func (e *Engine) DescendantsTree(ctx context.Context, id ir.NodeID) (*treebuild.Forest, error) {
	return observeRead(ctx, e, "descendants_tree", []attribute.KeyValue{nodeAttr("node", id)}, func(ctx context.Context) (*treebuild.Forest, error) {
		return e.forest(ctx, e.planner.DescendantsTree(id))
	})
}

// AncestorsTree returns the path from id's root down to id as a forest.
func (e *Engine) AncestorsTree(ctx context.Context, id ir.NodeID) (*treebuild.Forest, error) {
	return observeRead(ctx, e, "ancestors_tree", []attribute.KeyValue{nodeAttr("node", id)}, func(ctx context.Context) (*treebuild.Forest, error) {
		return e.forest(ctx, e.planner.AncestorsTree(id))
	})
}

func (e *Engine) forest(ctx context.Context, sel queryir.Select) (*treebuild.Forest, error) {
	recs, err := e.records(ctx, sel)
	if err != nil {
		return nil, err
	}
	return treebuild.Build(slices.Values(recs)), nil
}
