package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/treebuild"
)

// TreeOptions holds flags for the tree command.
type TreeOptions struct {
	*RootOptions
	Ancestors bool
}

// TreeNode is the JSON rendering of a forest node.
type TreeNode struct {
	NodeView
	Children []TreeNode `json:"children"`
}

// NewTreeCommand creates the tree command.
func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TreeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tree [ID]",
		Short: "Print the hierarchy",
		Long: `Print the whole hierarchy, the subtree under ID, or with --ancestors
the path from the root down to ID.

Examples:
  closuretree tree
  closuretree tree B
  closuretree tree D --ancestors --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Ancestors && len(args) == 0 {
				return NewExitError(ExitCommandError, "--ancestors requires a node ID")
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				return runTree(ctx, s, opts, args)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Ancestors, "ancestors", false, "print the path from the root to ID")

	return cmd
}

func runTree(ctx context.Context, s *session, opts *TreeOptions, args []string) error {
	var (
		forest *treebuild.Forest
		err    error
	)
	switch {
	case len(args) == 0:
		forest, err = s.engine.Tree(ctx, nil)
	case opts.Ancestors:
		forest, err = s.engine.AncestorsTree(ctx, ir.NodeID(args[0]))
	default:
		forest, err = s.engine.DescendantsTree(ctx, ir.NodeID(args[0]))
	}
	if err != nil {
		return engineExit("tree failed", err)
	}
	if len(args) == 1 && forest.Len() == 0 {
		return engineExit("tree failed", ir.NewNotFound("tree", ir.NodeID(args[0])))
	}

	var text strings.Builder
	if err := forest.Render(&text, func(n *treebuild.Node) string {
		return viewOf(n.Record).String()
	}); err != nil {
		return WrapExitError(ExitCommandError, "tree failed", err)
	}
	if forest.Len() == 0 {
		text.WriteString("(empty)\n")
	}
	return s.out.Success(treeNodes(forest.Roots()), text.String())
}

func treeNodes(ns []*treebuild.Node) []TreeNode {
	out := make([]TreeNode, len(ns))
	for i, n := range ns {
		out[i] = TreeNode{NodeView: viewOf(n.Record), Children: treeNodes(n.Children)}
	}
	return out
}

// ShowResult describes one node and its neighbourhood.
type ShowResult struct {
	Node      NodeView   `json:"node"`
	Depth     int        `json:"depth"`
	Parent    *NodeView  `json:"parent,omitempty"`
	Ancestors []NodeView `json:"ancestors"`
	Children  []NodeView `json:"children"`
	Siblings  []NodeView `json:"siblings"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Describe one node",
		Long: `Show a node with its depth, parent, ancestors (nearest first),
children and siblings.

Examples:
  closuretree show B
  closuretree show B --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				return runShow(ctx, s, ir.NodeID(args[0]))
			})
		},
	}
}

func runShow(ctx context.Context, s *session, id ir.NodeID) error {
	rec, err := s.engine.Get(ctx, id)
	if err != nil {
		return engineExit("show failed", err)
	}
	res := ShowResult{Node: viewOf(rec)}

	if res.Depth, err = s.engine.Depth(ctx, id); err != nil {
		return engineExit("show failed", err)
	}
	parent, ok, err := s.engine.Parent(ctx, id)
	if err != nil {
		return engineExit("show failed", err)
	}
	if ok {
		p := viewOf(parent)
		res.Parent = &p
	}
	ancestors, err := s.engine.Ancestors(ctx, id)
	if err != nil {
		return engineExit("show failed", err)
	}
	children, err := s.engine.Children(ctx, id)
	if err != nil {
		return engineExit("show failed", err)
	}
	siblings, err := s.engine.Siblings(ctx, id, ir.DirectionBoth)
	if err != nil {
		return engineExit("show failed", err)
	}
	res.Ancestors = viewsOf(ancestors)
	res.Children = viewsOf(children)
	res.Siblings = viewsOf(siblings)

	var b strings.Builder
	fmt.Fprintf(&b, "Node:      %s\n", res.Node)
	fmt.Fprintf(&b, "Depth:     %d\n", res.Depth)
	if res.Parent != nil {
		fmt.Fprintf(&b, "Parent:    %s\n", *res.Parent)
	} else {
		fmt.Fprintln(&b, "Parent:    (root)")
	}
	writeList(&b, "Ancestors", res.Ancestors)
	writeList(&b, "Children", res.Children)
	writeList(&b, "Siblings", res.Siblings)
	return s.out.Success(res, b.String())
}

func writeList(b *strings.Builder, title string, vs []NodeView) {
	fmt.Fprintf(b, "%s: %d\n", title, len(vs))
	for _, v := range vs {
		fmt.Fprintf(b, "  %s\n", v)
	}
}
