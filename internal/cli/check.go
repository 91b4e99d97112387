package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/closuretree/internal/engine"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Repair bool
}

// CheckResult reports the outcome of an integrity check.
type CheckResult struct {
	Repaired   int                `json:"repaired"`
	Violations []engine.Violation `json:"violations"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify closure rows and sibling positions",
		Long: `Verify every hierarchy invariant: self rows, a single parent per
node, transitive rows, rows that follow the parent chain, and dense
sibling positions.

With --repair, sibling positions are renumbered before checking.
Closure damage is reported but never rewritten.

Exit codes:
  0 - hierarchy is consistent
  1 - violations found
  2 - command error

Examples:
  closuretree check
  closuretree check --repair --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *session) error {
				return runCheck(ctx, s, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Repair, "repair", false, "renumber sibling positions before checking")

	return cmd
}

func runCheck(ctx context.Context, s *session, opts *CheckOptions) error {
	var res CheckResult
	if opts.Repair {
		moved, err := s.engine.Repair(ctx)
		if err != nil {
			return engineExit("repair failed", err)
		}
		res.Repaired = moved
		s.out.VerboseLog("repaired %d position(s)", moved)
	}

	violations, err := s.engine.Verify(ctx)
	if err != nil {
		return engineExit("check failed", err)
	}
	res.Violations = violations

	if len(violations) == 0 {
		text := "✓ Hierarchy is consistent\n"
		if opts.Repair {
			text = fmt.Sprintf("Repaired %d position(s)\n%s", res.Repaired, text)
		}
		return s.out.Success(res, text)
	}

	if s.out.Format == "json" {
		if err := s.out.Error("INTEGRITY_VIOLATION", fmt.Sprintf("%d violation(s) found", len(violations)), res); err != nil {
			return err
		}
	} else {
		var b strings.Builder
		for _, v := range violations {
			fmt.Fprintf(&b, "✗ %s\n", v)
		}
		fmt.Fprintf(&b, "%d violation(s) found\n", len(violations))
		if _, err := fmt.Fprint(s.out.Writer, b.String()); err != nil {
			return err
		}
	}
	// Violations = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("%d violation(s) found", len(violations)))
}
