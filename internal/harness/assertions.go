package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/closuretree/internal/engine"
	"github.com/roach88/closuretree/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Subject  string // Node or parent the assertion is about
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Subject)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the final hierarchy and
// returns one message per failure.
func EvaluateAssertions(ctx context.Context, eng *engine.Engine, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(ctx, eng, result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(ctx context.Context, eng *engine.Engine, result *Result, a Assertion) error {
	node := ir.NodeID(a.Node)
	switch a.Type {
	case AssertChildren:
		recs, err := eng.Children(ctx, ir.NodeID(a.Parent))
		return compareIDs(a, a.Parent, recs, err)
	case AssertRoots:
		recs, err := eng.Roots(ctx)
		return compareIDs(a, "", recs, err)
	case AssertAncestors:
		recs, err := eng.Ancestors(ctx, node)
		return compareIDs(a, a.Node, recs, err)
	case AssertDescendants:
		depth := 0
		if a.Depth != nil {
			depth = *a.Depth
		}
		recs, err := eng.Descendants(ctx, node, depth)
		return compareIDs(a, a.Node, recs, err)
	case AssertSiblings:
		dir := ir.DirectionBoth
		if a.Direction != "" {
			dir = ir.Direction(a.Direction)
		}
		recs, err := eng.Siblings(ctx, node, dir)
		return compareIDs(a, a.Node, recs, err)
	case AssertDepth:
		got, err := eng.Depth(ctx, node)
		if err != nil {
			return err
		}
		if got != *a.Depth {
			return &AssertionError{
				Type:     a.Type,
				Subject:  a.Node,
				Expected: fmt.Sprintf("depth %d", *a.Depth),
				Actual:   fmt.Sprintf("depth %d", got),
			}
		}
		return nil
	case AssertRowCount:
		if got := len(result.Closure); got != *a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d closure rows", *a.Count),
				Actual:   fmt.Sprintf("%d closure rows", got),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// compareIDs checks that recs lists exactly a.Expect, in order.
func compareIDs(a Assertion, subject string, recs []ir.NodeRecord, err error) error {
	if err != nil {
		return err
	}
	got := make([]string, len(recs))
	for i, r := range recs {
		got[i] = string(r.ID)
	}
	want := a.Expect
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Subject:  subject,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}
