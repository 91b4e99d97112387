package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/position"
)

// Insert adds node to the hierarchy under parent (ir.NoParent for a root)
// at the requested position (position.Append for the end).
//
// The parent must already be in the hierarchy and node must not be. Later
// siblings shift up to make room; the node record is saved with its
// resolved position.
func (e *Engine) Insert(ctx context.Context, node ir.Node, parent ir.NodeID, pos int) error {
	attrs := []attribute.KeyValue{nodeAttr("node", node.ID()), nodeAttr("parent", parent), attribute.Int("position", pos)}
	return e.mutate(ctx, "insert", attrs, func(ctx context.Context, t *txn) error {
		return t.insert(ctx, node, parent, pos)
	})
}

// Move relocates node and its subtree under newParent (ir.NoParent makes
// it a root) at the requested position.
//
// Moving a node under itself or one of its descendants fails with
// CYCLE_DETECTED before anything is written. Moving to the current parent
// and position is a no-op.
func (e *Engine) Move(ctx context.Context, node ir.Node, newParent ir.NodeID, pos int) error {
	attrs := []attribute.KeyValue{nodeAttr("node", node.ID()), nodeAttr("parent", newParent), attribute.Int("position", pos)}
	return e.mutate(ctx, "move", attrs, func(ctx context.Context, t *txn) error {
		return t.move(ctx, node, newParent, pos)
	})
}

// MakeRoot moves node out of its parent into the root set.
func (e *Engine) MakeRoot(ctx context.Context, node ir.Node, pos int) error {
	return e.Move(ctx, node, ir.NoParent, pos)
}

// Reorder moves node to a new position among its current siblings.
func (e *Engine) Reorder(ctx context.Context, node ir.Node, pos int) error {
	attrs := []attribute.KeyValue{nodeAttr("node", node.ID()), attribute.Int("position", pos)}
	return e.mutate(ctx, "reorder", attrs, func(ctx context.Context, t *txn) error {
		if ok, err := t.exists(ctx, node.ID()); err != nil {
			return err
		} else if !ok {
			return ir.NewNotFound("reorder", node.ID())
		}
		parent, err := t.parentOf(ctx, node.ID())
		if err != nil {
			return err
		}
		return t.move(ctx, node, parent, pos)
	})
}

// AddChild places node under parent: an insert when node is new to the
// hierarchy, a move otherwise.
func (e *Engine) AddChild(ctx context.Context, parent ir.NodeID, node ir.Node, pos int) error {
	attrs := []attribute.KeyValue{nodeAttr("node", node.ID()), nodeAttr("parent", parent), attribute.Int("position", pos)}
	return e.mutate(ctx, "add_child", attrs, func(ctx context.Context, t *txn) error {
		inHierarchy := false
		if node.Exists() {
			var err error
			if inHierarchy, err = t.exists(ctx, node.ID()); err != nil {
				return err
			}
		}
		if inHierarchy {
			return t.move(ctx, node, parent, pos)
		}
		return t.insert(ctx, node, parent, pos)
	})
}

// Delete removes id and its whole subtree: every closure row whose
// descendant is in the subtree, then the node records (soft or hard).
// Siblings after the removed node close the gap. A node that is not in
// the hierarchy is a no-op.
func (e *Engine) Delete(ctx context.Context, id ir.NodeID, hard bool) error {
	attrs := []attribute.KeyValue{nodeAttr("node", id), attribute.Bool("hard", hard)}
	return e.mutate(ctx, "delete", attrs, func(ctx context.Context, t *txn) error {
		return t.delete(ctx, id, hard)
	})
}

// TreeInput is one node of a nested structure for CreateTree.
type TreeInput struct {
	Node     ir.Node
	Children []TreeInput
}

// CreateTree inserts nested inputs under parent in one transaction.
// Inputs are appended in order, each level after the existing siblings.
func (e *Engine) CreateTree(ctx context.Context, parent ir.NodeID, inputs []TreeInput) error {
	attrs := []attribute.KeyValue{nodeAttr("parent", parent), attribute.Int("roots", len(inputs))}
	return e.mutate(ctx, "create_tree", attrs, func(ctx context.Context, t *txn) error {
		type pending struct {
			input  TreeInput
			parent ir.NodeID
		}
		queue := make([]pending, 0, len(inputs))
		for _, in := range inputs {
			queue = append(queue, pending{in, parent})
		}
		for len(queue) > 0 {
			next := queue[0]
			queue = queue[1:]
			if next.input.Node == nil {
				return ir.NewInvalidArgument("create_tree", "tree input without a node")
			}
			if err := t.insert(ctx, next.input.Node, next.parent, position.Append); err != nil {
				return err
			}
			for _, child := range next.input.Children {
				queue = append(queue, pending{child, next.input.Node.ID()})
			}
		}
		return nil
	})
}

func (t *txn) insert(ctx context.Context, node ir.Node, parent ir.NodeID, requested int) (err error) {
	id := node.ID()
	if id == "" {
		return ir.NewInvalidArgument("insert", "empty node id")
	}
	if id == parent {
		return &ir.Error{Code: ir.ErrCodeInvalidArgument, Op: "insert", NodeID: id, Message: "node cannot be its own parent"}
	}
	if in, err := t.exists(ctx, id); err != nil {
		return err
	} else if in {
		return &ir.Error{Code: ir.ErrCodeInvalidArgument, Op: "insert", NodeID: id, Message: "node is already part of the hierarchy"}
	}

	var chain []ir.ClosureRow
	if parent != ir.NoParent {
		if chain, err = t.closure().Select(ctx, t.e.planner.AncestorChain(parent)); err != nil {
			return err
		}
		if len(chain) == 0 {
			return ir.NewNotFound("insert", parent)
		}
	}

	sibs, err := t.siblings(ctx, parent, id)
	if err != nil {
		return err
	}
	pos, err := position.Guess(sibs, requested)
	if err != nil {
		return err
	}
	if err := t.setPositions(ctx, position.OpenGap(sibs, pos)); err != nil {
		return err
	}

	old := node.Position()
	node.SetPosition(pos)
	defer func() {
		if err != nil {
			node.SetPosition(old)
		}
	}()
	if err := t.e.nodes.Save(ctx, t.q, node); err != nil {
		return err
	}

	rows := make([]ir.ClosureRow, 0, len(chain)+1)
	rows = append(rows, ir.SelfRow(id))
	for _, c := range chain {
		rows = append(rows, ir.ClosureRow{Ancestor: c.Ancestor, Descendant: id, Depth: c.Depth + 1})
	}
	return t.insertRows(ctx, rows)
}

func (t *txn) move(ctx context.Context, node ir.Node, newParent ir.NodeID, requested int) (err error) {
	id := node.ID()
	if in, err := t.exists(ctx, id); err != nil {
		return err
	} else if !in {
		return ir.NewNotFound("move", id)
	}
	if newParent == id {
		return ir.NewCycleError(id, newParent)
	}
	if newParent != ir.NoParent {
		if in, err := t.exists(ctx, newParent); err != nil {
			return err
		} else if !in {
			return ir.NewNotFound("move", newParent)
		}
		under, err := t.closure().Exists(ctx, t.e.planner.InSubtree(id, newParent))
		if err != nil {
			return err
		}
		if under {
			return ir.NewCycleError(id, newParent)
		}
	}

	oldParent, err := t.parentOf(ctx, id)
	if err != nil {
		return err
	}
	oldPos, err := t.positionOf(ctx, "move", id)
	if err != nil {
		return err
	}

	old := node.Position()
	defer func() {
		if err != nil {
			node.SetPosition(old)
		}
	}()

	if oldParent == newParent {
		sibs, err := t.siblings(ctx, newParent)
		if err != nil {
			return err
		}
		pos, err := position.GuessWithin(sibs, requested)
		if err != nil {
			return err
		}
		node.SetPosition(pos)
		if pos == oldPos {
			return nil
		}
		others := withoutSibling(sibs, id)
		changes := append(position.Reorder(others, oldPos, pos), position.Change{ID: id, From: oldPos, To: pos})
		return t.setPositions(ctx, changes)
	}

	oldSibs, err := t.siblings(ctx, oldParent, id)
	if err != nil {
		return err
	}
	newSibs, err := t.siblings(ctx, newParent, id)
	if err != nil {
		return err
	}
	pos, err := position.Guess(newSibs, requested)
	if err != nil {
		return err
	}

	if err := t.deleteRows(ctx, t.e.planner.Sever(id)); err != nil {
		return err
	}
	if newParent != ir.NoParent {
		chain, err := t.closure().Select(ctx, t.e.planner.AncestorChain(newParent))
		if err != nil {
			return err
		}
		subtree, err := t.closure().Select(ctx, t.e.planner.Subtree(id))
		if err != nil {
			return err
		}
		rows := make([]ir.ClosureRow, 0, len(chain)*len(subtree))
		for _, up := range chain {
			for _, down := range subtree {
				rows = append(rows, ir.ClosureRow{
					Ancestor:   up.Ancestor,
					Descendant: down.Descendant,
					Depth:      up.Depth + down.Depth + 1,
				})
			}
		}
		if err := t.insertRows(ctx, rows); err != nil {
			return err
		}
	}

	changes := position.CloseGap(oldSibs, oldPos)
	changes = append(changes, position.OpenGap(newSibs, pos)...)
	changes = append(changes, position.Change{ID: id, From: oldPos, To: pos})
	node.SetPosition(pos)
	return t.setPositions(ctx, changes)
}

func (t *txn) delete(ctx context.Context, id ir.NodeID, hard bool) error {
	if in, err := t.exists(ctx, id); err != nil || !in {
		return err
	}

	parent, err := t.parentOf(ctx, id)
	if err != nil {
		return err
	}
	pos, err := t.positionOf(ctx, "delete", id)
	if err != nil {
		return err
	}
	sibs, err := t.siblings(ctx, parent, id)
	if err != nil {
		return err
	}
	subtree, err := t.closure().Select(ctx, t.e.planner.Subtree(id))
	if err != nil {
		return err
	}
	ids := make([]ir.NodeID, len(subtree))
	for i, r := range subtree {
		ids[i] = r.Descendant
	}

	if err := t.deleteRows(ctx, t.e.planner.Purge(id)); err != nil {
		return err
	}
	if err := t.e.nodes.Remove(ctx, t.q, ids, hard); err != nil {
		return err
	}
	return t.setPositions(ctx, position.CloseGap(sibs, pos))
}

func withoutSibling(sibs []position.Sibling, id ir.NodeID) []position.Sibling {
	out := make([]position.Sibling, 0, len(sibs))
	for _, s := range sibs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
