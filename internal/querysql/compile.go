package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
)

// Compiler compiles QueryIR to parameterized SQL for one Dialect.
//
// CRITICAL: All values are parameterized (never interpolated).
// Identifiers are interpolated, which is why Compile validates first.
type Compiler struct {
	Dialect Dialect
}

// NewCompiler creates a Compiler for d.
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *Compiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	b := &builder{dialect: c.Dialect}
	var err error
	switch query := q.(type) {
	case queryir.Select:
		err = b.selectStmt(query)
	case *queryir.Select:
		err = b.selectStmt(*query)
	case queryir.Insert:
		err = b.insertStmt(query)
	case *queryir.Insert:
		err = b.insertStmt(*query)
	case queryir.Update:
		err = b.updateStmt(query)
	case *queryir.Update:
		err = b.updateStmt(*query)
	case queryir.Delete:
		err = b.deleteStmt(query)
	case *queryir.Delete:
		err = b.deleteStmt(*query)
	default:
		err = fmt.Errorf("unsupported query type: %T", q)
	}
	if err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

// builder writes SQL left to right so placeholder numbering always matches
// argument order.
type builder struct {
	dialect Dialect
	sb      strings.Builder
	args    []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *builder) param(v ir.IRValue) error {
	arg, err := ir.ToSQL(v)
	if err != nil {
		return fmt.Errorf("convert value: %w", err)
	}
	b.args = append(b.args, arg)
	b.write(b.dialect.placeholder(len(b.args)))
	return nil
}

func columnRef(c queryir.Column) string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

func tableRef(t queryir.Table) string {
	if t.Alias == "" || t.Alias == t.Name {
		return t.Name
	}
	return t.Name + " AS " + t.Alias
}

func (b *builder) selectStmt(q queryir.Select) error {
	b.write("SELECT ")
	for i, col := range q.Columns {
		if i > 0 {
			b.write(", ")
		}
		b.write(columnRef(col))
		if col.As != "" && col.As != col.Name {
			b.write(" AS ", col.As)
		}
	}

	b.write(" FROM ", tableRef(q.From))
	for _, j := range q.Joins {
		b.write(" INNER JOIN ", tableRef(j.Table), " ON ")
		if err := b.predicate(j.On); err != nil {
			return fmt.Errorf("compile join %s: %w", j.Table.Name, err)
		}
	}

	if q.Filter != nil {
		b.write(" WHERE ")
		if err := b.predicate(q.Filter); err != nil {
			return fmt.Errorf("compile filter: %w", err)
		}
	}

	if len(q.GroupBy) > 0 {
		b.write(" GROUP BY ")
		for i, col := range q.GroupBy {
			if i > 0 {
				b.write(", ")
			}
			b.write(columnRef(col))
		}
		if q.Having != nil {
			b.write(" HAVING ")
			if err := b.predicate(q.Having); err != nil {
				return fmt.Errorf("compile having: %w", err)
			}
		}
	}

	if len(q.OrderBy) > 0 {
		b.write(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				b.write(", ")
			}
			b.write(columnRef(o.Column))
			if o.Binary {
				b.write(" ", b.dialect.binaryCollation())
			}
			if o.Desc {
				b.write(" DESC")
			} else {
				b.write(" ASC")
			}
		}
	}
	return nil
}

func (b *builder) insertStmt(q queryir.Insert) error {
	b.write("INSERT INTO ", q.Table, " (", strings.Join(q.Columns, ", "), ") VALUES ")
	for i, row := range q.Rows {
		if i > 0 {
			b.write(", ")
		}
		b.write("(")
		for j, v := range row {
			if j > 0 {
				b.write(", ")
			}
			if err := b.param(v); err != nil {
				return fmt.Errorf("row %d column %s: %w", i, q.Columns[j], err)
			}
		}
		b.write(")")
	}

	if q.Conflict != nil {
		b.write(" ON CONFLICT (", strings.Join(q.Conflict.Columns, ", "), ") DO ")
		if len(q.Conflict.Update) == 0 {
			b.write("NOTHING")
			return nil
		}
		b.write("UPDATE SET ")
		for i, col := range q.Conflict.Update {
			if i > 0 {
				b.write(", ")
			}
			b.write(col, " = excluded.", col)
		}
	}
	return nil
}

func (b *builder) updateStmt(q queryir.Update) error {
	b.write("UPDATE ", q.Table, " SET ")
	for i, a := range q.Set {
		if i > 0 {
			b.write(", ")
		}
		b.write(a.Column, " = ")
		if err := b.param(a.Value); err != nil {
			return fmt.Errorf("set %s: %w", a.Column, err)
		}
	}
	b.write(" WHERE ")
	if err := b.predicate(q.Filter); err != nil {
		return fmt.Errorf("compile filter: %w", err)
	}
	return nil
}

func (b *builder) deleteStmt(q queryir.Delete) error {
	b.write("DELETE FROM ", q.Table, " WHERE ")
	if err := b.predicate(q.Filter); err != nil {
		return fmt.Errorf("compile filter: %w", err)
	}
	return nil
}

// predicate compiles a queryir.Predicate to a SQL condition.
// CRITICAL: Values NEVER interpolated - always placeholders.
func (b *builder) predicate(p queryir.Predicate) error {
	switch pred := p.(type) {
	case queryir.Equals:
		b.write(columnRef(pred.Column), " = ")
		return b.param(pred.Value)
	case *queryir.Equals:
		return b.predicate(*pred)
	case queryir.Compare:
		b.write(columnRef(pred.Column), " ", string(pred.Op), " ")
		return b.param(pred.Value)
	case *queryir.Compare:
		return b.predicate(*pred)
	case queryir.In:
		b.write(columnRef(pred.Column), " IN (")
		for i, v := range pred.Values {
			if i > 0 {
				b.write(", ")
			}
			if err := b.param(v); err != nil {
				return err
			}
		}
		b.write(")")
		return nil
	case *queryir.In:
		return b.predicate(*pred)
	case queryir.InQuery:
		b.write(columnRef(pred.Column))
		if pred.Not {
			b.write(" NOT")
		}
		b.write(" IN (")
		if err := b.selectStmt(pred.Query); err != nil {
			return fmt.Errorf("compile subquery: %w", err)
		}
		b.write(")")
		return nil
	case *queryir.InQuery:
		return b.predicate(*pred)
	case queryir.ColumnEquals:
		b.write(columnRef(pred.Left), " = ", columnRef(pred.Right))
		return nil
	case *queryir.ColumnEquals:
		return b.predicate(*pred)
	case queryir.IsNull:
		b.write(columnRef(pred.Column), " IS ")
		if pred.Not {
			b.write("NOT ")
		}
		b.write("NULL")
		return nil
	case *queryir.IsNull:
		return b.predicate(*pred)
	case queryir.And:
		if len(pred.Predicates) == 0 {
			b.write("1 = 1")
			return nil
		}
		for i, sub := range pred.Predicates {
			if i > 0 {
				b.write(" AND ")
			}
			if err := b.predicate(sub); err != nil {
				return err
			}
		}
		return nil
	case *queryir.And:
		return b.predicate(*pred)
	case queryir.CountWhere:
		b.write("SUM(CASE WHEN ")
		if err := b.predicate(pred.Filter); err != nil {
			return err
		}
		b.write(" THEN 1 ELSE 0 END) = ")
		return b.param(ir.IRInt(pred.Count))
	case *queryir.CountWhere:
		return b.predicate(*pred)
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}
