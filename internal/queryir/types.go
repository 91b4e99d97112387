package queryir

import "github.com/roach88/closuretree/internal/ir"

// Query represents an abstract statement in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Query types:
//   - Select: joins, filters, grouping and ordering over node/closure tables
//   - Insert: bulk row insert with optional conflict handling
//   - Update: column assignments filtered by a predicate
//   - Delete: predicate delete
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// Predicates are used in Select.Filter, Select.Having, Join.On,
// Update.Filter and Delete.Filter.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Table names a table and the alias columns use to qualify it.
type Table struct {
	Name  string
	Alias string // empty = unaliased
}

// Column references a column, optionally qualified by a table alias and
// renamed in the result set.
type Column struct {
	Table string // alias (or table name) qualifier; empty = unqualified
	Name  string
	As    string // result name; empty = Name
}

// Col is shorthand for a qualified column.
func Col(table, name string) Column {
	return Column{Table: table, Name: name}
}

// Named returns a copy of c that is returned under the given result name.
func (c Column) Named(as string) Column {
	c.As = as
	return c
}

// ResultName is the key the column's value is returned under.
func (c Column) ResultName() string {
	if c.As != "" {
		return c.As
	}
	return c.Name
}

// Join is an INNER JOIN of Table using On.
// Only inner joins exist: every hierarchy shape is an equi-join.
type Join struct {
	Table Table
	On    Predicate
}

// Order is one ORDER BY term.
type Order struct {
	Column Column
	Desc   bool

	// Binary requests byte-wise collation, for deterministic ordering of
	// text keys across backends.
	Binary bool
}

// Select represents a read.
//
// Semantics:
//
//	SELECT <columns> FROM <from> [JOIN ...] [WHERE <filter>]
//	  [GROUP BY <group_by> [HAVING <having>]] [ORDER BY <order_by>]
//
// Example (children of "B"):
//
//	Select{
//	  From:  Table{Name: "nodes", Alias: "n"},
//	  Joins: []Join{{
//	    Table: Table{Name: "nodes_closure", Alias: "c"},
//	    On:    ColumnEquals{Left: Col("c", "descendant"), Right: Col("n", "id")},
//	  }},
//	  Columns: []Column{Col("n", "id"), Col("n", "position")},
//	  Filter: And{Predicates: []Predicate{
//	    Equals{Column: Col("c", "ancestor"), Value: ir.IRString("B")},
//	    Equals{Column: Col("c", "depth"), Value: ir.IRInt(1)},
//	  }},
//	  OrderBy: []Order{{Column: Col("n", "position")}},
//	}
//
// Columns must be explicit (no SELECT *).
type Select struct {
	From    Table
	Joins   []Join
	Columns []Column
	Filter  Predicate // nil = no filter
	GroupBy []Column
	Having  Predicate // requires GroupBy
	OrderBy []Order
}

func (Select) queryNode() {}

// Conflict describes ON CONFLICT handling for an Insert.
//
// With Update empty the statement becomes ON CONFLICT (...) DO NOTHING;
// otherwise each listed column is overwritten from the excluded row.
type Conflict struct {
	Columns []string
	Update  []string
}

// Insert represents a bulk insert of literal rows.
//
// Each row must have exactly len(Columns) values.
type Insert struct {
	Table    string
	Columns  []string
	Rows     [][]ir.IRValue
	Conflict *Conflict // nil = fail on conflict
}

func (Insert) queryNode() {}

// Assignment is one SET term of an Update.
type Assignment struct {
	Column string
	Value  ir.IRValue
}

// Update represents an UPDATE of a single table.
type Update struct {
	Table  string
	Set    []Assignment
	Filter Predicate // required; whole-table updates are rejected
}

func (Update) queryNode() {}

// Delete represents a predicate delete from a single table.
type Delete struct {
	Table  string
	Filter Predicate // required; whole-table deletes are rejected
}

func (Delete) queryNode() {}

// Equals represents a column-equals-literal predicate.
//
//	<column> = <value>
//
// Value must not be IRNull; use IsNull.
type Equals struct {
	Column Column
	Value  ir.IRValue
}

func (Equals) predicateNode() {}

// Op is a comparison operator for Compare.
type Op string

const (
	OpLess      Op = "<"
	OpLessEq    Op = "<="
	OpGreater   Op = ">"
	OpGreaterEq Op = ">="
	OpNotEqual  Op = "<>"
)

// Compare represents an ordered comparison against a literal.
//
//	<column> <op> <value>
type Compare struct {
	Column Column
	Op     Op
	Value  ir.IRValue
}

func (Compare) predicateNode() {}

// In represents membership in a literal list.
//
//	<column> IN (<values...>)
//
// An empty list is rejected by Validate; callers short-circuit instead.
type In struct {
	Column Column
	Values ir.IRArray
}

func (In) predicateNode() {}

// InQuery represents membership in the single-column result of a subquery.
//
//	<column> [NOT] IN (SELECT ...)
type InQuery struct {
	Column Column
	Query  Select
	Not    bool
}

func (InQuery) predicateNode() {}

// ColumnEquals represents an equi-join condition between two columns.
//
//	<left> = <right>
type ColumnEquals struct {
	Left  Column
	Right Column
}

func (ColumnEquals) predicateNode() {}

// IsNull represents a NULL test.
//
//	<column> IS [NOT] NULL
type IsNull struct {
	Column Column
	Not    bool
}

func (IsNull) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// Empty Predicates means "always true".
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// CountWhere is an aggregate predicate for Having clauses: the number of
// grouped rows matching Filter equals Count.
//
//	SUM(CASE WHEN <filter> THEN 1 ELSE 0 END) = <count>
//
// The roots query uses it with Count 0 over depth > 0 rows.
type CountWhere struct {
	Filter Predicate
	Count  int64
}

func (CountWhere) predicateNode() {}

// AllOf builds an And, dropping nil predicates. A single remaining
// predicate is returned unwrapped; none returns nil.
func AllOf(preds ...Predicate) Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}
