// Package engine maintains a closure-table hierarchy.
//
// The engine composes the closure store, the query planner and the
// position index. It owns every closure invariant:
//
//  1. Every node has exactly one self row (depth 0).
//  2. A node with parent p has the row (p, node, 1).
//  3. Rows (a,b,d1) and (b,c,d2) imply the row (a,c,d1+d2).
//  4. A node is a root iff it has no row at depth > 0.
//  5. Sibling positions are exactly 0..count-1.
//
// MUTATIONS:
//
// Insert, Move, Delete, Reorder, AddChild, MakeRoot, CreateTree and Repair
// each run inside exactly one store transaction. Reads of the current
// closure state, row deltas, node record writes and sibling reflows commit
// or roll back together. Node records are written through the NodeStore
// collaborator, which receives the transaction as its store.Querier.
//
// The engine holds no mutable state of its own. Concurrent writers are
// serialised by the database: SQLite takes the write lock when the
// transaction begins, PostgreSQL runs at REPEATABLE READ and fails one of
// two conflicting writers with a serialization error. Failed transactions
// are reported to the caller, never retried here.
//
// READS:
//
// Hierarchy reads compile planner descriptors and run them outside any
// transaction. Tree reads return a treebuild.Forest.
//
// OBSERVABILITY:
//
// Every public operation opens an OpenTelemetry span, observes its
// duration, and counts its result in Prometheus metrics
// (closuretree_operations_total, closuretree_operation_duration_seconds,
// closuretree_closure_rows_total). Mutations log at Debug on success and
// Warn on failure.
package engine
