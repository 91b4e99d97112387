package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/nodes"
	"github.com/roach88/closuretree/internal/position"
)

// InitResult reports the tables a database was initialised with.
type InitResult struct {
	Driver       string `json:"driver"`
	NodeTable    string `json:"node_table"`
	ClosureTable string `json:"closure_table"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the node and closure tables",
		Long: `Create the node and closure tables if they do not exist.

Running init again is safe.

Examples:
  closuretree init --db ./tree.db
  closuretree init --config closuretree.toml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				schema := s.store.Schema()
				res := InitResult{
					Driver:       s.cfg.Storage.Driver,
					NodeTable:    schema.NodeTable,
					ClosureTable: schema.ClosureTable,
				}
				return s.out.Success(res, fmt.Sprintf("Initialized %s (closure table %s)\n", res.NodeTable, res.ClosureTable))
			})
		},
	}
}

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Parent   string
	Position int
	ID       string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add LABEL",
		Short: "Insert a new node",
		Long: `Insert a new node under --parent, or as a root when --parent is empty.

Without --position the node is appended after its last sibling.

Examples:
  closuretree add Docs
  closuretree add Intro --parent 0190c1c4-... --position 0`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				return runAdd(ctx, s, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "parent node ID (empty for a root)")
	cmd.Flags().IntVar(&opts.Position, "position", position.Append, "sibling position (-1 appends)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "node ID (default: generated UUIDv7)")

	return cmd
}

func runAdd(ctx context.Context, s *session, opts *AddOptions, label string) error {
	n := nodes.New(label)
	if opts.ID != "" {
		n = nodes.WithID(ir.NodeID(opts.ID), label)
	}
	if err := s.engine.Insert(ctx, n, ir.NodeID(opts.Parent), opts.Position); err != nil {
		return engineExit("add failed", err)
	}
	rec, err := s.engine.Get(ctx, n.ID())
	if err != nil {
		return engineExit("add failed", err)
	}
	v := viewOf(rec)
	s.out.VerboseLog("inserted %s under %q", v.ID, opts.Parent)
	return s.out.Success(v, fmt.Sprintf("%s\n", v.ID))
}

// MoveOptions holds flags for the mv command.
type MoveOptions struct {
	*RootOptions
	Parent   string
	Root     bool
	Position int
}

// NewMoveCommand creates the mv command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mv ID",
		Short: "Move a node and its subtree",
		Long: `Move a node (with its whole subtree) under --parent, make it a root
with --root, or reorder it among its current siblings when neither is given.

Moving a node under itself or one of its descendants is rejected.

Examples:
  closuretree mv B --parent C
  closuretree mv B --root --position 0
  closuretree mv B --position 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Root && opts.Parent != "" {
				return NewExitError(ExitCommandError, "--root and --parent are mutually exclusive")
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				return runMove(ctx, s, opts, ir.NodeID(args[0]))
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Parent, "parent", "p", "", "new parent node ID")
	cmd.Flags().BoolVar(&opts.Root, "root", false, "make the node a root")
	cmd.Flags().IntVar(&opts.Position, "position", position.Append, "sibling position (-1 appends)")

	return cmd
}

func runMove(ctx context.Context, s *session, opts *MoveOptions, id ir.NodeID) error {
	n, err := s.repo.Get(ctx, s.store, id)
	if err != nil {
		return engineExit("move failed", err)
	}

	switch {
	case opts.Root:
		err = s.engine.MakeRoot(ctx, n, opts.Position)
	case opts.Parent != "":
		err = s.engine.Move(ctx, n, ir.NodeID(opts.Parent), opts.Position)
	default:
		err = s.engine.Reorder(ctx, n, opts.Position)
	}
	if err != nil {
		return engineExit("move failed", err)
	}

	rec, err := s.engine.Get(ctx, id)
	if err != nil {
		return engineExit("move failed", err)
	}
	v := viewOf(rec)
	return s.out.Success(v, fmt.Sprintf("Moved %s\n", v))
}

// RemoveOptions holds flags for the rm command.
type RemoveOptions struct {
	*RootOptions
	Hard bool
}

// RemoveResult reports what rm removed.
type RemoveResult struct {
	ID      ir.NodeID   `json:"id"`
	Removed []ir.NodeID `json:"removed"`
	Hard    bool        `json:"hard"`
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a node and its subtree",
		Long: `Delete a node and every descendant from the hierarchy.

Node rows are soft-deleted (deleted_at is set) unless --hard is given.
Removing a node that does not exist succeeds without changes.

Examples:
  closuretree rm B
  closuretree rm B --hard`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				return runRemove(ctx, s, opts, ir.NodeID(args[0]))
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Hard, "hard", false, "delete node rows instead of marking them deleted")

	return cmd
}

func runRemove(ctx context.Context, s *session, opts *RemoveOptions, id ir.NodeID) error {
	res := RemoveResult{ID: id, Removed: []ir.NodeID{}, Hard: opts.Hard}

	if _, err := s.engine.Get(ctx, id); err == nil {
		res.Removed = append(res.Removed, id)
		sub, err := s.engine.Descendants(ctx, id, 0)
		if err != nil {
			return engineExit("rm failed", err)
		}
		for _, r := range sub {
			res.Removed = append(res.Removed, r.ID)
		}
	} else if !ir.IsNotFound(err) {
		return engineExit("rm failed", err)
	}

	if err := s.engine.Delete(ctx, id, opts.Hard); err != nil {
		return engineExit("rm failed", err)
	}
	return s.out.Success(res, fmt.Sprintf("Removed %d node(s)\n", len(res.Removed)))
}
