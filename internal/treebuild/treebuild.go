// Package treebuild converts flat, closure-annotated node rows into an
// ordered forest.
//
// Input rows are the shape planner.Tree produces: one row per (node,
// ancestor) pair. Only the depth-1 rows matter for nesting; a node whose
// depth-1 ancestor is absent from the input becomes a root. One pass over
// the input builds the index; nesting and ordering happen afterwards, so
// row order does not matter.
package treebuild

import (
	"cmp"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"

	"github.com/roach88/closuretree/internal/ir"
)

// Node is one node in a built forest.
type Node struct {
	Record   ir.NodeRecord
	Parent   *Node
	Children []*Node

	// Depth is the distance from the node's root within this forest.
	Depth int
}

// ID returns the node's id.
func (n *Node) ID() ir.NodeID { return n.Record.ID }

// Forest is an ordered sequence of root nodes.
type Forest struct {
	roots []*Node
	index map[ir.NodeID]*Node
}

// Build consumes rows once and returns the nested forest. Siblings are
// ordered by position, then id.
func Build(rows iter.Seq[ir.NodeRecord]) *Forest {
	index := make(map[ir.NodeID]*Node)
	order := []*Node{}
	parents := make(map[ir.NodeID]ir.NodeID)

	for rec := range rows {
		n, ok := index[rec.ID]
		if !ok {
			stored := rec
			stored.Closure = nil
			n = &Node{Record: stored}
			index[rec.ID] = n
			order = append(order, n)
		}
		if c := rec.Closure; c != nil && c.Depth == 1 && c.Descendant == rec.ID {
			parents[rec.ID] = c.Ancestor
		}
	}

	f := &Forest{roots: []*Node{}, index: index}
	for _, n := range order {
		if pid, ok := parents[n.ID()]; ok {
			if p, ok := index[pid]; ok && p != n {
				n.Parent = p
				p.Children = append(p.Children, n)
				continue
			}
		}
		f.roots = append(f.roots, n)
	}

	sortNodes(f.roots)
	for _, n := range order {
		sortNodes(n.Children)
	}
	for depth, n := range f.All() {
		n.Depth = depth
	}
	return f
}

// FromSlice is Build over a slice.
func FromSlice(rows []ir.NodeRecord) *Forest {
	return Build(slices.Values(rows))
}

func sortNodes(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int {
		if c := cmp.Compare(a.Record.Position, b.Record.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.ID, b.Record.ID)
	})
}

// Roots returns the root nodes in order.
func (f *Forest) Roots() []*Node {
	return f.roots
}

// Len returns the number of distinct nodes in the input.
func (f *Forest) Len() int {
	return len(f.index)
}

// Find returns the node with the given id.
func (f *Forest) Find(id ir.NodeID) (*Node, bool) {
	n, ok := f.index[id]
	return n, ok
}

// All yields (depth, node) in depth-first pre-order. It uses an explicit
// stack, so tree height does not bound it, and every call starts over.
func (f *Forest) All() iter.Seq2[int, *Node] {
	return func(yield func(int, *Node) bool) {
		type frame struct {
			node  *Node
			depth int
		}
		stack := make([]frame, 0, len(f.roots))
		for i := len(f.roots) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.roots[i], 0})
		}
		// Nodes on a parent cycle are never reachable from a root, but
		// guard anyway so corrupt input cannot loop forever.
		seen := make(map[*Node]bool, len(f.index))
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[top.node] {
				continue
			}
			seen[top.node] = true
			if !yield(top.depth, top.node) {
				return
			}
			for i := len(top.node.Children) - 1; i >= 0; i-- {
				stack = append(stack, frame{top.node.Children[i], top.depth + 1})
			}
		}
	}
}

// IDs returns every node id in pre-order.
func (f *Forest) IDs() []ir.NodeID {
	ids := make([]ir.NodeID, 0, len(f.index))
	for _, n := range f.All() {
		ids = append(ids, n.ID())
	}
	return ids
}

// Render writes one line per node, indented two spaces per level. label
// defaults to the node id.
func (f *Forest) Render(w io.Writer, label func(*Node) string) error {
	if label == nil {
		label = func(n *Node) string { return string(n.ID()) }
	}
	for depth, n := range f.All() {
		if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), label(n)); err != nil {
			return fmt.Errorf("render %s: %w", n.ID(), err)
		}
	}
	return nil
}
