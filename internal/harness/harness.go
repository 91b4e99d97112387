package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/closuretree/internal/engine"
	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/nodes"
	"github.com/roach88/closuretree/internal/position"
	"github.com/roach88/closuretree/internal/store"
	"github.com/roach88/closuretree/internal/testutil"
)

// Harness runs scenarios against a real engine with a deterministic step
// clock and node id generator.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.StepClock
	ids    *testutil.IDGenerator
	logger *slog.Logger

	// known holds the node values created so far, so later steps move
	// the same instances the engine inserted.
	known map[ir.NodeID]*nodes.Node
}

// Option configures Run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to the store and engine.
// Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Schema is the table layout scenarios run against.
func Schema() ir.Schema {
	s := ir.DefaultSchema("nodes")
	s.Attributes = []string{nodes.LabelColumn}
	return s
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory SQLite database for isolation.
// Execution flow:
//  1. Create the setup forest in one transaction
//  2. Execute flow steps, comparing each outcome with its expect clause
//  3. Verify every hierarchy invariant
//  4. Evaluate assertions
//
// An error is returned only when the scenario cannot run at all; failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{DSN: ":memory:", Schema: Schema(), Logger: o.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewStepClock()
	repo, err := nodes.NewRepository(st.Schema(), nodes.WithClock(clock.Now))
	if err != nil {
		return nil, err
	}
	if err := repo.CreateTable(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to create node table: %w", err)
	}
	eng, err := engine.New(st, repo, engine.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:  st,
		engine: eng,
		clock:  clock,
		ids:    testutil.NewIDGenerator("n"),
		logger: o.logger,
		known:  make(map[ir.NodeID]*nodes.Node),
	}

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if err := h.snapshot(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to read final hierarchy: %w", err)
	}

	violations, err := eng.Verify(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify hierarchy: %w", err)
	}
	for _, v := range violations {
		result.AddError(fmt.Sprintf("hierarchy violation: %s", v))
	}

	for _, msg := range EvaluateAssertions(ctx, eng, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeSetup creates the starting forest with CreateTree.
func (h *Harness) executeSetup(ctx context.Context, setup []SetupNode) error {
	if len(setup) == 0 {
		return nil
	}
	inputs := h.treeInputs(setup)
	if err := h.engine.CreateTree(ctx, ir.NoParent, inputs); err != nil {
		return err
	}
	h.logger.Debug("setup completed", "nodes", len(h.known))
	return nil
}

func (h *Harness) treeInputs(setup []SetupNode) []engine.TreeInput {
	out := make([]engine.TreeInput, len(setup))
	for i, s := range setup {
		id := ir.NodeID(s.ID)
		if id == "" {
			id = h.ids.Next()
		}
		label := s.Label
		if label == "" {
			label = string(id)
		}
		n := nodes.WithID(id, label)
		h.known[id] = n
		out[i] = engine.TreeInput{Node: n, Children: h.treeInputs(s.Children)}
	}
	return out
}

// node returns the instance the harness created for id, or a fresh
// unsaved node when id was never created.
func (h *Harness) node(id ir.NodeID) *nodes.Node {
	if n, ok := h.known[id]; ok {
		return n
	}
	return nodes.WithID(id, string(id))
}

// executeFlow runs every flow step and checks its expect clause.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		seq := h.clock.Next()
		id := ir.NodeID(step.Node)
		parent := ir.NodeID(step.Parent)
		pos := position.Append
		if step.Position != nil {
			pos = *step.Position
		}

		err := h.apply(ctx, step, id, parent, pos)

		outcome := "ok"
		if err != nil {
			code := ir.CodeOf(err)
			if code == "" {
				// Not an engine rejection: the run itself is broken.
				return fmt.Errorf("flow step %d (%s %s): %w", i, step.Op, id, err)
			}
			outcome = string(code)
		}

		want := "ok"
		if step.Expect != nil && step.Expect.Error != "" {
			want = step.Expect.Error
		}
		if outcome != want {
			msg := fmt.Sprintf("flow[%d] %s %s: expected %s, got %s", i, step.Op, id, want, outcome)
			if err != nil {
				msg += fmt.Sprintf(" (%v)", err)
			}
			result.AddError(msg)
		}

		rows, err := store.Closure(h.store).Select(ctx, nil)
		if err != nil {
			return fmt.Errorf("flow step %d: count closure rows: %w", i, err)
		}
		result.AddStep(StepEvent{
			Seq:      seq,
			Op:       step.Op,
			Node:     id,
			Parent:   parent,
			Position: step.Position,
			Outcome:  outcome,
			Rows:     len(rows),
		})

		h.logger.Debug("flow step completed",
			"step", i,
			"op", step.Op,
			"node", id,
			"outcome", outcome,
			"rows", len(rows),
		)
	}
	return nil
}

func (h *Harness) apply(ctx context.Context, step FlowStep, id, parent ir.NodeID, pos int) error {
	switch step.Op {
	case OpInsert:
		n := nodes.WithID(id, string(id))
		if err := h.engine.Insert(ctx, n, parent, pos); err != nil {
			return err
		}
		h.known[id] = n
		return nil
	case OpAddChild:
		n := h.node(id)
		if err := h.engine.AddChild(ctx, parent, n, pos); err != nil {
			return err
		}
		h.known[id] = n
		return nil
	case OpMove:
		return h.engine.Move(ctx, h.node(id), parent, pos)
	case OpMakeRoot:
		return h.engine.MakeRoot(ctx, h.node(id), pos)
	case OpReorder:
		return h.engine.Reorder(ctx, h.node(id), pos)
	case OpDelete:
		return h.engine.Delete(ctx, id, step.Hard)
	default:
		return errors.New("unknown op " + step.Op)
	}
}

// snapshot copies the final closure relation and sibling layout into result.
func (h *Harness) snapshot(ctx context.Context, result *Result) error {
	rows, err := store.Closure(h.store).Select(ctx, nil)
	if err != nil {
		return err
	}
	result.Closure = append(result.Closure, rows...)

	forest, err := h.engine.Tree(ctx, nil)
	if err != nil {
		return err
	}
	for _, n := range forest.All() {
		parent := ir.NoParent
		if n.Parent != nil {
			parent = n.Parent.ID()
		}
		result.Layout[parent] = append(result.Layout[parent], n.ID())
	}
	return nil
}
