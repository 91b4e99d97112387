// Package store provides transactional storage for closure tables on
// SQLite (github.com/mattn/go-sqlite3) or PostgreSQL (pgx stdlib).
//
// The store knows the closure relation's column names and nothing else
// about trees:
//   - Closure(q).Insert: bulk insert of ClosureRows
//   - Closure(q).Delete: predicate delete
//   - Closure(q).Select: predicate select
//   - WithTransaction: scoped commit-or-rollback
//
// Statements arrive as queryir values and are compiled per dialect by
// querysql. Every driver failure is returned as an ir.Error with code
// STORAGE_ERROR; constraint violations set Constraint.
//
// # Isolation
//
// Mutations are read-then-write sequences and need repeatable read or
// stronger. PostgreSQL transactions are opened at REPEATABLE READ, where
// conflicting writers fail with a serialization error that the caller may
// retry. SQLite transactions are opened IMMEDIATE, taking the write lock
// up front.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
