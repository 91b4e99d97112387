// Package queryir provides an abstract query intermediate representation (IR)
// for closure-table reads and writes.
//
// QueryIR is the boundary between the query planner, which knows the
// hierarchy join shapes, and the SQL backend, which knows dialects:
//
//	[planner] → [Query IR] → [querysql] → database/sql
//
// The planner never produces SQL text. Everything it builds is a value of
// this package, which keeps join shapes testable without a database and
// lets one plan serve SQLite and PostgreSQL.
//
// FRAGMENT:
//
// The fragment is deliberately small:
//   - Select(from, joins, columns, filter, group by, having, order by)
//   - Insert(table, columns, rows, on conflict)
//   - Update(table, assignments, filter)
//   - Delete(table, filter)
//   - Predicates: Equals, Compare, In, InQuery, ColumnEquals, IsNull, And,
//     CountWhere (having only)
//
// It EXCLUDES outer joins, OR predicates, arithmetic, and SELECT *.
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package can implement them, so backends can switch
// exhaustively:
//
//	switch q := query.(type) {
//	case Select, *Select:
//	case Insert, *Insert:
//	case Update, *Update:
//	case Delete, *Delete:
//	}
//
// VALUES:
//
// All literals are ir.IRValue (no floats). Identifiers are interpolated by
// the backend, so Validate rejects anything that is not a plain identifier.
package queryir
