package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/closuretree/internal/ir"
)

// Scenario defines a hierarchy test scenario: a starting tree, a flow of
// mutations, and assertions on the resulting hierarchy.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are named after it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup is the starting forest, created in one transaction.
	// Nodes without an id get one from a deterministic generator.
	Setup []SetupNode `yaml:"setup,omitempty"`

	// Flow contains the mutations to run, in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final hierarchy.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SetupNode is one node of the starting forest.
type SetupNode struct {
	ID       string      `yaml:"id,omitempty"`
	Label    string      `yaml:"label,omitempty"`
	Children []SetupNode `yaml:"children,omitempty"`
}

// FlowStep is one mutation.
type FlowStep struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Node is the node being inserted, moved or deleted.
	Node string `yaml:"node"`

	// Parent is the target parent. Empty means a root for insert.
	Parent string `yaml:"parent,omitempty"`

	// Position is the requested sibling position. Absent appends.
	Position *int `yaml:"position,omitempty"`

	// Hard selects a hard delete.
	Hard bool `yaml:"hard,omitempty"`

	// Expect specifies the expected outcome. Nil expects success.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Error is the expected error code (e.g. CYCLE_DETECTED). Empty
	// expects success.
	Error string `yaml:"error"`
}

// Assertion validates the final hierarchy.
type Assertion struct {
	// Type specifies the assertion type (one of the Assert* constants).
	Type string `yaml:"type"`

	// Node is the anchor node (ancestors, descendants, siblings, depth).
	Node string `yaml:"node,omitempty"`

	// Parent selects whose children are checked (children).
	Parent string `yaml:"parent,omitempty"`

	// Direction filters siblings: prev, next or both (default both).
	Direction string `yaml:"direction,omitempty"`

	// Depth limits descendants to one level, or is the expected depth
	// for a depth assertion.
	Depth *int `yaml:"depth,omitempty"`

	// Count is the expected closure row count (row_count).
	Count *int `yaml:"count,omitempty"`

	// Expect is the expected ids in order.
	Expect []string `yaml:"expect,omitempty"`
}

// Flow operations.
const (
	OpInsert   = "insert"
	OpAddChild = "add_child"
	OpMove     = "move"
	OpMakeRoot = "make_root"
	OpReorder  = "reorder"
	OpDelete   = "delete"
)

var flowOps = []string{OpInsert, OpAddChild, OpMove, OpMakeRoot, OpReorder, OpDelete}

// Assertion type constants.
const (
	AssertChildren    = "children"
	AssertRoots       = "roots"
	AssertAncestors   = "ancestors"
	AssertDescendants = "descendants"
	AssertSiblings    = "siblings"
	AssertDepth       = "depth"
	AssertRowCount    = "row_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so typos like "assertion:" fail loudly.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and reports every problem.
func validateScenario(s *Scenario) error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(s.Flow) == 0 && len(s.Setup) == 0 {
		errs = append(errs, errors.New("setup or flow is required"))
	}
	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			errs = append(errs, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateStep(index int, step FlowStep) error {
	if !slices.Contains(flowOps, step.Op) {
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}
	if step.Node == "" {
		return fmt.Errorf("flow[%d]: node is required", index)
	}
	if (step.Op == OpMove || step.Op == OpAddChild) && step.Parent == "" {
		return fmt.Errorf("flow[%d]: parent is required for %s", index, step.Op)
	}
	if step.Expect != nil && step.Expect.Error != "" {
		switch ir.ErrorCode(step.Expect.Error) {
		case ir.ErrCodeInvalidArgument, ir.ErrCodeNotFound, ir.ErrCodeCycle, ir.ErrCodeStorage:
		default:
			return fmt.Errorf("flow[%d]: unknown error code %q", index, step.Expect.Error)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertChildren:
		if a.Parent == "" {
			return fmt.Errorf("assertions[%d]: parent is required for children", index)
		}
	case AssertRoots:
	case AssertAncestors, AssertDescendants:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for %s", index, a.Type)
		}
	case AssertSiblings:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for siblings", index)
		}
		if a.Direction != "" {
			if err := ir.Direction(a.Direction).Validate(); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertDepth:
		if a.Node == "" || a.Depth == nil {
			return fmt.Errorf("assertions[%d]: node and depth are required for depth", index)
		}
	case AssertRowCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
