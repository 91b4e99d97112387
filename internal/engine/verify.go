package engine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/position"
	"github.com/roach88/closuretree/internal/store"
)

// ViolationCode identifies which hierarchy invariant a Violation breaks.
type ViolationCode string

const (
	// ViolationMissingSelfRow: a node appears in closure rows without its
	// depth-0 row.
	ViolationMissingSelfRow ViolationCode = "MISSING_SELF_ROW"

	// ViolationMultipleParents: a node has more than one depth-1 row.
	ViolationMultipleParents ViolationCode = "MULTIPLE_PARENTS"

	// ViolationMissingPath: rows (a,b,d1) and (b,c,d2) exist but (a,c,d1+d2)
	// does not.
	ViolationMissingPath ViolationCode = "MISSING_PATH"

	// ViolationStalePath: a row (a,c,d) disagrees with the parent chain
	// of c.
	ViolationStalePath ViolationCode = "STALE_PATH"

	// ViolationMissingRecord: closure rows reference a node with no record.
	ViolationMissingRecord ViolationCode = "MISSING_RECORD"

	// ViolationPositions: sibling positions are not exactly 0..count-1.
	ViolationPositions ViolationCode = "POSITIONS_NOT_DENSE"
)

// Violation is one broken invariant found by Verify.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Node    ir.NodeID     `json:"node"`
	Message string        `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Code, v.Node, v.Message)
}

// snapshot is the closure relation and node positions read in one
// transaction.
type snapshot struct {
	rows      []ir.ClosureRow
	positions map[ir.NodeID]int
	parents   map[ir.NodeID][]ir.NodeID
}

func (t *txn) snapshot(ctx context.Context) (*snapshot, error) {
	rows, err := t.closure().Select(ctx, nil)
	if err != nil {
		return nil, err
	}
	recs, err := t.records(ctx, t.e.planner.Nodes())
	if err != nil {
		return nil, err
	}
	s := &snapshot{
		rows:      rows,
		positions: make(map[ir.NodeID]int, len(recs)),
		parents:   make(map[ir.NodeID][]ir.NodeID),
	}
	for _, r := range recs {
		s.positions[r.ID] = r.Position
	}
	for _, r := range rows {
		if r.Depth == 1 {
			s.parents[r.Descendant] = append(s.parents[r.Descendant], r.Ancestor)
		}
	}
	return s, nil
}

// siblingSets groups hierarchy nodes by parent (ir.NoParent for roots).
// Nodes with several parents are grouped under the first.
func (s *snapshot) siblingSets() map[ir.NodeID][]position.Sibling {
	sets := make(map[ir.NodeID][]position.Sibling)
	for id, pos := range s.positions {
		parent := ir.NoParent
		if ps := s.parents[id]; len(ps) > 0 {
			parent = ps[0]
		}
		sets[parent] = append(sets[parent], position.Sibling{ID: id, Position: pos})
	}
	return sets
}

// Verify reads the whole hierarchy in one transaction and reports every
// broken invariant. An empty result means the hierarchy is consistent.
func (e *Engine) Verify(ctx context.Context) ([]Violation, error) {
	var violations []Violation
	err := e.observe(ctx, "verify", nil, func(ctx context.Context) error {
		return e.store.WithTransaction(ctx, func(tx *store.Tx) error {
			t := &txn{e: e, q: tx}
			s, err := t.snapshot(ctx)
			if err != nil {
				return err
			}
			violations = s.verify()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		e.logger.Warn("hierarchy violations found", "count", len(violations))
	}
	return violations, nil
}

func (s *snapshot) verify() []Violation {
	out := []Violation{}
	add := func(code ViolationCode, node ir.NodeID, format string, args ...any) {
		out = append(out, Violation{Code: code, Node: node, Message: fmt.Sprintf(format, args...)})
	}

	type pair struct{ a, d ir.NodeID }
	depthOf := make(map[pair]int, len(s.rows))
	below := make(map[ir.NodeID][]ir.ClosureRow)
	seen := make(map[ir.NodeID]bool)
	self := make(map[ir.NodeID]bool)
	for _, r := range s.rows {
		depthOf[pair{r.Ancestor, r.Descendant}] = r.Depth
		below[r.Ancestor] = append(below[r.Ancestor], r)
		seen[r.Ancestor], seen[r.Descendant] = true, true
		if r.IsSelf() {
			self[r.Ancestor] = true
		}
	}

	ids := make([]ir.NodeID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if !self[id] {
			add(ViolationMissingSelfRow, id, "no depth-0 row")
		}
		if _, ok := s.positions[id]; !ok {
			add(ViolationMissingRecord, id, "closure rows reference a node without a record")
		}
		if ps := s.parents[id]; len(ps) > 1 {
			add(ViolationMultipleParents, id, "parents %v", ps)
		}
	}

	// Transitivity.
	for _, ab := range s.rows {
		if ab.Depth == 0 {
			continue
		}
		for _, bc := range below[ab.Descendant] {
			if bc.Depth == 0 {
				continue
			}
			want := ab.Depth + bc.Depth
			got, ok := depthOf[pair{ab.Ancestor, bc.Descendant}]
			if !ok || got != want {
				add(ViolationMissingPath, bc.Descendant, "(%s,%s,%d) and (%s,%s,%d) require (%s,%s,%d)",
					ab.Ancestor, ab.Descendant, ab.Depth,
					bc.Ancestor, bc.Descendant, bc.Depth,
					ab.Ancestor, bc.Descendant, want)
			}
		}
	}

	// Every strict row must match the parent chain.
	for _, r := range s.rows {
		if r.Depth == 0 {
			continue
		}
		cur := r.Descendant
		for step := 0; step < r.Depth && cur != ir.NoParent; step++ {
			ps := s.parents[cur]
			if len(ps) == 0 {
				cur = ir.NoParent
				break
			}
			cur = ps[0]
		}
		if cur != r.Ancestor {
			add(ViolationStalePath, r.Descendant, "row %s does not follow the parent chain", r)
		}
	}

	sets := s.siblingSets()
	parents := make([]ir.NodeID, 0, len(sets))
	for p := range sets {
		parents = append(parents, p)
	}
	slices.Sort(parents)
	for _, p := range parents {
		if !position.Dense(sets[p]) {
			label := p
			if p == ir.NoParent {
				label = "(roots)"
			}
			add(ViolationPositions, label, "positions %v", sortedPositions(sets[p]))
		}
	}

	slices.SortStableFunc(out, func(a, b Violation) int {
		return cmp.Compare(a.Code, b.Code)
	})
	return out
}

func sortedPositions(sibs []position.Sibling) []int {
	out := make([]int, len(sibs))
	for i, s := range sibs {
		out[i] = s.Position
	}
	slices.Sort(out)
	return out
}

// Repair renumbers every sibling set to 0..count-1, keeping the current
// order (position, then id). It returns the number of nodes that moved.
// Closure rows are not rewritten; use Verify to find closure damage.
func (e *Engine) Repair(ctx context.Context) (int, error) {
	var moved int
	err := e.mutate(ctx, "repair", nil, func(ctx context.Context, t *txn) error {
		s, err := t.snapshot(ctx)
		if err != nil {
			return err
		}
		sets := s.siblingSets()
		parents := make([]ir.NodeID, 0, len(sets))
		for p := range sets {
			parents = append(parents, p)
		}
		slices.Sort(parents)

		var changes []position.Change
		for _, p := range parents {
			changes = append(changes, position.Normalize(sets[p])...)
		}
		moved = len(changes)
		return t.setPositions(ctx, changes)
	})
	return moved, err
}
