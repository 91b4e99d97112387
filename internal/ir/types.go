package ir

import "fmt"

// NodeID is the opaque identity of a node. The engine never interprets it.
type NodeID string

// NoParent is the parent argument that makes a node a root.
const NoParent NodeID = ""

// ClosureRow is one materialized ancestor/descendant pair.
//
// Descendant is reachable from Ancestor in exactly Depth parent links.
// Depth 0 iff Ancestor == Descendant (the self row every node has).
type ClosureRow struct {
	Ancestor   NodeID `json:"ancestor"`
	Descendant NodeID `json:"descendant"`
	Depth      int    `json:"depth"`
}

// IsSelf reports whether the row is a node's self row.
func (r ClosureRow) IsSelf() bool {
	return r.Ancestor == r.Descendant
}

func (r ClosureRow) String() string {
	return fmt.Sprintf("(%s,%s,%d)", r.Ancestor, r.Descendant, r.Depth)
}

// SelfRow returns the depth-0 row for id.
func SelfRow(id NodeID) ClosureRow {
	return ClosureRow{Ancestor: id, Descendant: id, Depth: 0}
}

// ClosureMetadata is the closure pair a node record was reached through.
// Attached to results of closure-aware queries (tree, ancestors, descendants).
type ClosureMetadata struct {
	Ancestor   NodeID `json:"ancestor"`
	Descendant NodeID `json:"descendant"`
	Depth      int    `json:"depth"`
}

// NodeRecord is one node as returned by a hierarchy query.
type NodeRecord struct {
	ID       NodeID `json:"id"`
	Position int    `json:"position"`

	// Attributes holds the extra node columns named in Schema.Attributes.
	Attributes IRObject `json:"attributes,omitempty"`

	// Closure is set when the query joined through a specific closure row.
	Closure *ClosureMetadata `json:"closure,omitempty"`
}

// Direction selects which siblings a sibling query returns, relative to
// the anchor node's position.
type Direction string

const (
	// DirectionPrev selects siblings with position < anchor.
	DirectionPrev Direction = "prev"

	// DirectionNext selects siblings with position > anchor.
	DirectionNext Direction = "next"

	// DirectionBoth selects every sibling except the anchor.
	DirectionBoth Direction = "both"
)

// Validate rejects any direction other than prev, next or both.
func (d Direction) Validate() error {
	switch d {
	case DirectionPrev, DirectionNext, DirectionBoth:
		return nil
	default:
		return NewInvalidArgument("siblings", fmt.Sprintf("invalid sibling direction %q: must be prev, next or both", string(d)))
	}
}

// ParseDirection converts user input into a Direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d, nil
}

// Node is the contract the hierarchy needs from the layer that owns node
// records: an opaque identity, a sibling position the engine may rewrite,
// and whether the record has been persisted.
type Node interface {
	ID() NodeID
	Position() int
	SetPosition(int)
	Exists() bool
}
