// Package harness runs hierarchy scenarios against a real engine.
//
// A scenario builds a starting forest, applies a flow of mutations, and
// asserts on the final hierarchy. Every run also verifies all closure and
// position invariants, so a scenario with no assertions still fails when a
// mutation leaves the hierarchy inconsistent.
//
// # Scenario Format
//
//	name: move_across_parents
//	description: "C moves under B and A's children reflow"
//	setup:
//	  - id: A
//	    children:
//	      - id: B
//	      - id: C
//	flow:
//	  - op: move
//	    node: C
//	    parent: B
//	    position: 1
//	  - op: move
//	    node: A
//	    parent: C
//	    expect:
//	      error: CYCLE_DETECTED
//	assertions:
//	  - type: children
//	    parent: B
//	    expect: [C]
//	  - type: row_count
//	    count: 5
//
// Flow ops are insert, add_child, move, make_root, reorder and delete
// (with hard: true for a hard delete). An omitted position appends.
//
// # Assertion Types
//
//   - children: ordered children of parent
//   - roots: ordered roots
//   - ancestors: ancestors of node, nearest first
//   - descendants: descendants of node, optionally only at depth
//   - siblings: siblings of node in direction (prev, next, both)
//   - depth: distance from node to its root
//   - row_count: total closure rows
//
// # Deterministic Testing
//
// Each run uses a private in-memory SQLite database, a step clock
// (testutil.StepClock) for step numbers and soft-delete timestamps, and
// sequential ids (testutil.IDGenerator) for setup nodes declared without
// one. The same scenario therefore always yields byte-identical snapshots,
// which RunWithGolden compares against testdata/golden.
package harness
