package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/closuretree/internal/ir"
)

// ValidationError lists every problem found in a query.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks a query before compilation.
//
// Rules:
//  1. Every table, alias and column is a plain SQL identifier
//  2. Select lists columns explicitly; Having requires GroupBy
//  3. Update and Delete carry a filter (no whole-table writes)
//  4. Insert rows match the column count
//  5. Equals/Compare never compare against NULL; In lists are non-empty
//  6. Subqueries select exactly one column
//
// Validate is a pure function. It returns nil or a *ValidationError.
func Validate(query Query) error {
	v := &validator{}
	v.validateQuery(query)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) ident(kind, name string) {
	if !ir.ValidIdentifier(name) {
		v.addProblem("%s %q is not a valid identifier", kind, name)
	}
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Insert:
		v.validateInsert(query)
	case *Insert:
		v.validateInsert(*query)
	case Update:
		v.validateUpdate(query)
	case *Update:
		v.validateUpdate(*query)
	case Delete:
		v.validateDelete(query)
	case *Delete:
		v.validateDelete(*query)
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) validateTable(t Table) {
	v.ident("table", t.Name)
	if t.Alias != "" {
		v.ident("alias", t.Alias)
	}
}

func (v *validator) validateColumn(c Column) {
	if c.Table != "" {
		v.ident("table qualifier", c.Table)
	}
	v.ident("column", c.Name)
	if c.As != "" {
		v.ident("column alias", c.As)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.validateTable(sel.From)
	for _, j := range sel.Joins {
		v.validateTable(j.Table)
		if j.On == nil {
			v.addProblem("join on %s has no condition", j.Table.Name)
			continue
		}
		v.validatePredicate(j.On, false)
	}
	if len(sel.Columns) == 0 {
		v.addProblem("select from %s lists no columns", sel.From.Name)
	}
	seen := make(map[string]bool, len(sel.Columns))
	for _, c := range sel.Columns {
		v.validateColumn(c)
		name := c.ResultName()
		if seen[name] {
			v.addProblem("duplicate result column %q", name)
		}
		seen[name] = true
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter, false)
	}
	for _, c := range sel.GroupBy {
		v.validateColumn(c)
	}
	if sel.Having != nil {
		if len(sel.GroupBy) == 0 {
			v.addProblem("having without group by")
		}
		v.validatePredicate(sel.Having, true)
	}
	for _, o := range sel.OrderBy {
		v.validateColumn(o.Column)
	}
}

func (v *validator) validateInsert(ins Insert) {
	v.ident("table", ins.Table)
	if len(ins.Columns) == 0 {
		v.addProblem("insert into %s lists no columns", ins.Table)
	}
	for _, c := range ins.Columns {
		v.ident("column", c)
	}
	if len(ins.Rows) == 0 {
		v.addProblem("insert into %s has no rows", ins.Table)
	}
	for i, row := range ins.Rows {
		if len(row) != len(ins.Columns) {
			v.addProblem("insert row %d has %d values, want %d", i, len(row), len(ins.Columns))
		}
	}
	if ins.Conflict != nil {
		if len(ins.Conflict.Columns) == 0 {
			v.addProblem("conflict clause lists no columns")
		}
		for _, c := range ins.Conflict.Columns {
			v.ident("conflict column", c)
		}
		for _, c := range ins.Conflict.Update {
			v.ident("conflict update column", c)
		}
	}
}

func (v *validator) validateUpdate(up Update) {
	v.ident("table", up.Table)
	if len(up.Set) == 0 {
		v.addProblem("update of %s sets no columns", up.Table)
	}
	for _, a := range up.Set {
		v.ident("column", a.Column)
		if a.Value == nil {
			v.addProblem("update of %s.%s has no value", up.Table, a.Column)
		}
	}
	if up.Filter == nil {
		v.addProblem("update of %s has no filter", up.Table)
		return
	}
	v.validatePredicate(up.Filter, false)
}

func (v *validator) validateDelete(del Delete) {
	v.ident("table", del.Table)
	if del.Filter == nil {
		v.addProblem("delete from %s has no filter", del.Table)
		return
	}
	v.validatePredicate(del.Filter, false)
}

func (v *validator) validateLiteral(c Column, value ir.IRValue) {
	switch value.(type) {
	case nil:
		v.addProblem("column %s compared to nil value", c.Name)
	case ir.IRNull:
		v.addProblem("column %s compared to NULL (use IsNull)", c.Name)
	case ir.IRArray, ir.IRObject:
		v.addProblem("column %s compared to non-scalar %T", c.Name, value)
	}
}

// validatePredicate recursively validates a predicate node. aggregate is
// true inside a Having clause, the only place CountWhere is allowed.
func (v *validator) validatePredicate(p Predicate, aggregate bool) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case Equals:
		v.validateColumn(pred.Column)
		v.validateLiteral(pred.Column, pred.Value)
	case *Equals:
		v.validatePredicate(*pred, aggregate)
	case Compare:
		v.validateColumn(pred.Column)
		v.validateLiteral(pred.Column, pred.Value)
		switch pred.Op {
		case OpLess, OpLessEq, OpGreater, OpGreaterEq, OpNotEqual:
		default:
			v.addProblem("unknown comparison operator %q", pred.Op)
		}
	case *Compare:
		v.validatePredicate(*pred, aggregate)
	case In:
		v.validateColumn(pred.Column)
		if len(pred.Values) == 0 {
			v.addProblem("column %s IN empty list", pred.Column.Name)
		}
		for _, val := range pred.Values {
			v.validateLiteral(pred.Column, val)
		}
	case *In:
		v.validatePredicate(*pred, aggregate)
	case InQuery:
		v.validateColumn(pred.Column)
		if len(pred.Query.Columns) != 1 {
			v.addProblem("subquery for %s must select exactly one column", pred.Column.Name)
		}
		v.validateSelect(pred.Query)
	case *InQuery:
		v.validatePredicate(*pred, aggregate)
	case ColumnEquals:
		v.validateColumn(pred.Left)
		v.validateColumn(pred.Right)
	case *ColumnEquals:
		v.validatePredicate(*pred, aggregate)
	case IsNull:
		v.validateColumn(pred.Column)
	case *IsNull:
		v.validatePredicate(*pred, aggregate)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, aggregate)
		}
	case *And:
		v.validatePredicate(*pred, aggregate)
	case CountWhere:
		if !aggregate {
			v.addProblem("CountWhere is only valid in a having clause")
		}
		if pred.Count < 0 {
			v.addProblem("CountWhere count must be non-negative")
		}
		v.validatePredicate(pred.Filter, false)
	case *CountWhere:
		v.validatePredicate(*pred, aggregate)
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}
