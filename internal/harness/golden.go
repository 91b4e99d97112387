package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/closuretree/internal/ir"
)

// Snapshot is the canonical JSON form of a scenario's outcome: its trace,
// final closure rows and sibling layout.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"seq":     ev.Seq,
			"op":      ev.Op,
			"node":    ev.Node,
			"outcome": ev.Outcome,
			"rows":    ev.Rows,
		}
		if ev.Parent != ir.NoParent {
			m["parent"] = ev.Parent
		}
		if ev.Position != nil {
			m["position"] = *ev.Position
		}
		trace[i] = m
	}

	closure := make([]any, len(result.Closure))
	for i, r := range result.Closure {
		closure[i] = map[string]any{
			"ancestor":   r.Ancestor,
			"descendant": r.Descendant,
			"depth":      r.Depth,
		}
	}

	layout := make(map[string]any, len(result.Layout))
	for parent, children := range result.Layout {
		ids := make([]any, len(children))
		for i, c := range children {
			ids[i] = c
		}
		layout[string(parent)] = ids
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario": name,
		"trace":    trace,
		"closure":  closure,
		"layout":   layout,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
