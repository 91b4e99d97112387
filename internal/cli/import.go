package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/closuretree/internal/compiler"
	"github.com/roach88/closuretree/internal/engine"
	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/nodes"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Parent string
}

// ImportResult reports the nodes created by an import.
type ImportResult struct {
	Parent  ir.NodeID   `json:"parent,omitempty"`
	Created []ir.NodeID `json:"created"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create a nested tree from a YAML or CUE file",
		Long: `Create every node in a tree definition in one transaction, appended
under --parent (or as roots). Nodes without an id get a generated UUIDv7.

YAML format:
  - label: Docs
    children:
      - label: Intro
      - id: faq
        label: FAQ

CUE format (files ending in .cue):
  tree: [
    {label: "Docs", children: [{label: "Intro"}, {id: "faq", label: "FAQ"}]},
  ]

Examples:
  closuretree import tree.yaml
  closuretree import tree.cue --parent 0190c1c4-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := compiler.Load(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid import file", err)
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				return runImport(ctx, s, opts, entries)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "parent node ID (empty imports roots)")

	return cmd
}

// treeInputs converts import entries to engine inputs and lists the ids in
// creation order (breadth first, matching CreateTree).
func treeInputs(entries []compiler.NodeSpec) ([]engine.TreeInput, []ir.NodeID) {
	var build func([]compiler.NodeSpec) []engine.TreeInput
	build = func(es []compiler.NodeSpec) []engine.TreeInput {
		out := make([]engine.TreeInput, len(es))
		for i, e := range es {
			n := nodes.New(e.Label)
			if e.ID != "" {
				n = nodes.WithID(ir.NodeID(e.ID), e.Label)
			}
			out[i] = engine.TreeInput{Node: n, Children: build(e.Children)}
		}
		return out
	}
	inputs := build(entries)

	ids := []ir.NodeID{}
	queue := inputs
	for len(queue) > 0 {
		in := queue[0]
		queue = queue[1:]
		ids = append(ids, in.Node.ID())
		queue = append(queue, in.Children...)
	}
	return inputs, ids
}

func runImport(ctx context.Context, s *session, opts *ImportOptions, entries []compiler.NodeSpec) error {
	inputs, ids := treeInputs(entries)
	if err := s.engine.CreateTree(ctx, ir.NodeID(opts.Parent), inputs); err != nil {
		return engineExit("import failed", err)
	}
	res := ImportResult{Parent: ir.NodeID(opts.Parent), Created: ids}
	return s.out.Success(res, fmt.Sprintf("Imported %d node(s)\n", len(ids)))
}
