// Package ir provides the foundational types shared by every closuretree package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Contents:
//   - Hierarchy model: NodeID, ClosureRow, ClosureMetadata, NodeRecord, Direction
//   - Naming configuration: Schema (tables and columns, validated identifiers)
//   - Coded errors: Error with INVALID_ARGUMENT, STORAGE_ERROR, CYCLE_DETECTED, NOT_FOUND
//   - Constrained values: the sealed IRValue family used as query literals and
//     as generic row values returned by the store
//   - Canonical JSON (RFC 8785, NFC strings) used for deterministic snapshots
//
// Key design constraints:
//   - NO float types in IRValue - depth and position are integers, ids are strings
//   - A ClosureRow with Depth 0 is always a self row (Ancestor == Descendant)
//   - Closure metadata travels as a typed value on NodeRecord, never as loose
//     attributes on a node
package ir
