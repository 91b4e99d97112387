// Package position assigns and re-flows sibling positions.
//
// Positions are dense, zero-based and unique per parent. Every function here
// is pure: it takes the current sibling set and returns the position
// changes to apply, leaving persistence to the caller.
package position

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/closuretree/internal/ir"
)

// Append requests the position after the last sibling.
const Append = -1

// Sibling is a node's id and current position within its parent.
type Sibling struct {
	ID       ir.NodeID
	Position int
}

// Change moves one sibling from one position to another.
type Change struct {
	ID   ir.NodeID
	From int
	To   int
}

// AppendPosition returns max(position)+1, or 0 when there are no siblings.
func AppendPosition(siblings []Sibling) int {
	next := 0
	for _, s := range siblings {
		if s.Position+1 > next {
			next = s.Position + 1
		}
	}
	return next
}

// Guess resolves the position a node takes when it joins siblings.
//
// Append resolves to AppendPosition. Anything past the end is clamped to
// the append position (so a request on an empty parent resolves to 0).
func Guess(siblings []Sibling, requested int) (int, error) {
	last := AppendPosition(siblings)
	return resolve(requested, last)
}

// GuessWithin resolves a position for a node that already belongs to
// siblings (siblings includes the node itself), as in a reorder.
func GuessWithin(siblings []Sibling, requested int) (int, error) {
	last := max(len(siblings)-1, 0)
	return resolve(requested, last)
}

func resolve(requested, last int) (int, error) {
	switch {
	case requested == Append:
		return last, nil
	case requested < 0:
		return 0, ir.NewInvalidArgument("position", fmt.Sprintf("position %d is negative", requested))
	case requested > last:
		return last, nil
	default:
		return requested, nil
	}
}

// Reflow shifts every sibling whose position lies in the inclusive range
// [from, to] by delta (+1 or -1). Changes are ordered by original position.
func Reflow(siblings []Sibling, from, to, delta int) []Change {
	changes := []Change{}
	if from > to || delta == 0 {
		return changes
	}
	for _, s := range sorted(siblings) {
		if s.Position >= from && s.Position <= to {
			changes = append(changes, Change{ID: s.ID, From: s.Position, To: s.Position + delta})
		}
	}
	return changes
}

// OpenGap makes room at position at by shifting it and everything after it
// up by one.
func OpenGap(siblings []Sibling, at int) []Change {
	return Reflow(siblings, at, math.MaxInt, 1)
}

// CloseGap fills the hole left at position at by shifting everything after
// it down by one.
func CloseGap(siblings []Sibling, at int) []Change {
	return Reflow(siblings, at+1, math.MaxInt, -1)
}

// Reorder returns the sibling changes for moving one node from position
// oldPos to newPos under the same parent: a single contiguous reflow
// between the two. The moving node itself is not included.
func Reorder(siblings []Sibling, oldPos, newPos int) []Change {
	switch {
	case newPos > oldPos:
		return Reflow(siblings, oldPos+1, newPos, -1)
	case newPos < oldPos:
		return Reflow(siblings, newPos, oldPos-1, 1)
	default:
		return []Change{}
	}
}

// Normalize renumbers siblings to 0..n-1 keeping their relative order
// (position, then id) and returns the changes for those that move.
func Normalize(siblings []Sibling) []Change {
	changes := []Change{}
	for i, s := range sorted(siblings) {
		if s.Position != i {
			changes = append(changes, Change{ID: s.ID, From: s.Position, To: i})
		}
	}
	return changes
}

// Dense reports whether siblings occupy exactly 0..n-1 with no duplicates.
func Dense(siblings []Sibling) bool {
	for i, s := range sorted(siblings) {
		if s.Position != i {
			return false
		}
	}
	return true
}

func sorted(siblings []Sibling) []Sibling {
	out := slices.Clone(siblings)
	slices.SortFunc(out, func(a, b Sibling) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
