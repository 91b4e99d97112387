package harness

import "github.com/roach88/closuretree/internal/ir"

// StepEvent records one executed flow step.
type StepEvent struct {
	Seq      int64     `json:"seq"`
	Op       string    `json:"op"`
	Node     ir.NodeID `json:"node"`
	Parent   ir.NodeID `json:"parent,omitempty"`
	Position *int      `json:"position,omitempty"`

	// Outcome is "ok" or the error code the engine returned.
	Outcome string `json:"outcome"`

	// Rows is the closure row count after the step.
	Rows int `json:"rows"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held and the
	// final hierarchy verified clean.
	Pass bool `json:"pass"`

	// Trace contains the flow steps in order.
	Trace []StepEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Closure is the final closure relation, ordered by depth, ancestor,
	// descendant.
	Closure []ir.ClosureRow `json:"closure"`

	// Layout maps each parent ("" for roots) to its children in order.
	Layout map[ir.NodeID][]ir.NodeID `json:"layout"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []StepEvent{},
		Errors:  []string{},
		Closure: []ir.ClosureRow{},
		Layout:  map[ir.NodeID][]ir.NodeID{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a flow step to the trace.
func (r *Result) AddStep(ev StepEvent) {
	r.Trace = append(r.Trace, ev)
}
