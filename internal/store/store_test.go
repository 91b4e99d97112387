package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
	"github.com/roach88/closuretree/internal/querysql"
)

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Config{DSN: path, Schema: ir.DefaultSchema("nodes")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func row(a, d ir.NodeID, depth int) ir.ClosureRow {
	return ir.ClosureRow{Ancestor: a, Descendant: d, Depth: depth}
}

func byDescendant(s *Store, id ir.NodeID) queryir.Predicate {
	return queryir.Equals{Column: queryir.Column{Name: s.Schema().DescendantColumn}, Value: ir.IRString(id)}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.Equal(t, querysql.SQLite, s.Dialect())
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := Config{DSN: path, Schema: ir.DefaultSchema("nodes")}

	s1, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, Closure(s1).Insert(ctx, []ir.ClosureRow{row("A", "A", 0)}))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer s2.Close()

	rows, err := Closure(s2).Select(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []ir.ClosureRow{row("A", "A", 0)}, rows)
}

func TestOpen_RecordsSchemaVersion(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.Query(context.Background(), queryir.Select{
		From:    queryir.Table{Name: "closuretree_schema"},
		Columns: []queryir.Column{{Name: "closure_table"}, {Name: "version"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "nodes_closure", rows[0].String("closure_table"))
	v, ok := rows[0].Int("version")
	require.True(t, ok)
	assert.Equal(t, int64(currentSchemaVersion), v)
}

func TestOpen_ExplicitClosureTable(t *testing.T) {
	ctx := context.Background()
	schema := ir.Schema{NodeTable: "pages", ClosureTable: "page_paths"}
	s, err := Open(ctx, Config{DSN: filepath.Join(t.TempDir(), "test.db"), Schema: schema})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "page_paths", s.Schema().ClosureTable)
	require.NoError(t, Closure(s).Insert(ctx, []ir.ClosureRow{row("p", "p", 0)}))

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM page_paths").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpen_RejectsBadConfig(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{Driver: "mysql", DSN: "x", Schema: ir.DefaultSchema("nodes")})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidArgument(err))

	_, err = Open(ctx, Config{DSN: ":memory:", Schema: ir.DefaultSchema("bad name")})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidArgument(err))

	_, err = Open(ctx, Config{Schema: ir.DefaultSchema("nodes")})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidArgument(err))
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{DSN: ":memory:"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, Closure(s).Insert(ctx, []ir.ClosureRow{row("A", "A", 0)}))
	rows, err := Closure(s).Select(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "x.db?_txlock=immediate", sqliteDSN("x.db"))
	assert.Equal(t, "file:x.db?cache=shared&_txlock=immediate", sqliteDSN("file:x.db?cache=shared"))
	assert.Equal(t, "x.db?_txlock=deferred", sqliteDSN("x.db?_txlock=deferred"))
}

func TestClosure_InsertSelectDelete(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	c := Closure(s)

	require.NoError(t, c.Insert(ctx, []ir.ClosureRow{
		row("A", "A", 0),
		row("B", "B", 0),
		row("A", "B", 1),
		row("D", "D", 0),
		row("B", "D", 1),
		row("A", "D", 2),
	}))

	got, err := c.Select(ctx, byDescendant(s, "D"))
	require.NoError(t, err)
	assert.Equal(t, []ir.ClosureRow{row("D", "D", 0), row("B", "D", 1), row("A", "D", 2)}, got)

	exists, err := c.Exists(ctx, byDescendant(s, "B"))
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := c.Delete(ctx, byDescendant(s, "D"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	all, err := c.Select(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []ir.ClosureRow{row("A", "A", 0), row("B", "B", 0), row("A", "B", 1)}, all)
}

func TestClosure_SelectEmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)
	rows, err := Closure(s).Select(context.Background(), byDescendant(s, "missing"))
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestClosure_InsertEmptyIsNoop(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, Closure(s).Insert(context.Background(), nil))
}

func TestClosure_DuplicateIsConstraintViolation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	c := Closure(s)

	require.NoError(t, c.Insert(ctx, []ir.ClosureRow{row("A", "A", 0)}))
	err := c.Insert(ctx, []ir.ClosureRow{row("A", "A", 0)})
	require.Error(t, err)
	assert.True(t, ir.IsStorageError(err))
	assert.True(t, ir.IsConstraintViolation(err))
}

func TestClosure_DepthChecks(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	c := Closure(s)

	for _, bad := range []ir.ClosureRow{
		row("A", "B", 0),
		row("A", "A", 1),
		row("A", "B", -1),
	} {
		err := c.Insert(ctx, []ir.ClosureRow{bad})
		require.Error(t, err, bad.String())
		assert.True(t, ir.IsConstraintViolation(err), bad.String())
	}
}

func TestExec_ChunksLargeInserts(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	rows := make([]ir.ClosureRow, 0, 2*insertChunkRows+7)
	for i := 0; i < cap(rows); i++ {
		id := ir.NodeID(fmt.Sprintf("n%04d", i))
		rows = append(rows, row(id, id, 0))
	}
	require.NoError(t, Closure(s).Insert(ctx, rows))

	got, err := Closure(s).Select(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, got, len(rows))
}

func TestHasSQL(t *testing.T) {
	tests := []struct {
		name string
		stmt string
		want bool
	}{
		{"empty", "", false},
		{"whitespace", "\n  \t\n", false},
		{"comment only", "-- header\n  -- more\n", false},
		{"statement", "CREATE TABLE t (a TEXT)", true},
		{"statement after comment", "-- header\nDROP TABLE t", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasSQL(tt.stmt))
		})
	}
}

func TestStripComments(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"no comments", "CREATE TABLE t (a TEXT);\n", "CREATE TABLE t (a TEXT);\n"},
		{"full line", "-- one; two\nSELECT 1;\n", "\nSELECT 1;\n"},
		{"trailing", "a TEXT, -- note; here\nb TEXT\n", "a TEXT, \nb TEXT\n"},
		{"dashes in literal", "DEFAULT '--;x' -- gone\n", "DEFAULT '--;x' \n"},
		{"last line without newline", "SELECT 1 -- end", "SELECT 1 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripComments(tt.script))
		})
	}
}

func TestApplyDDL_CommentsMayContainSemicolons(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	tmpl := template.Must(template.New("extra").Parse(`
-- Two tables; the second one references the first.
CREATE TABLE IF NOT EXISTS {{.NodeTable}}_tags (
    tag TEXT NOT NULL PRIMARY KEY -- unique; case-sensitive
);

-- Trailing comment; nothing follows.
CREATE TABLE IF NOT EXISTS {{.NodeTable}}_tag_links (
    tag  TEXT NOT NULL DEFAULT '--',
    node TEXT NOT NULL
);
-- done;
`))
	require.NoError(t, s.ApplyDDL(ctx, tmpl, s.Schema()))
	require.NoError(t, s.ApplyDDL(ctx, tmpl, s.Schema()), "templates are re-runnable")

	for _, table := range []string{"nodes_tags", "nodes_tag_links"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	_, err := s.DB().Exec("INSERT INTO nodes_tag_links (node) VALUES ('a')")
	require.NoError(t, err)
	var tag string
	require.NoError(t, s.DB().QueryRow("SELECT tag FROM nodes_tag_links").Scan(&tag))
	assert.Equal(t, "--", tag)
}

func TestApplyDDL_ReportsFailingStatement(t *testing.T) {
	s := createTestStore(t)
	tmpl := template.Must(template.New("broken").Parse("CREATE TABLE ok_table (a TEXT);\nCREATE TABLE (;\n"))
	err := s.ApplyDDL(context.Background(), tmpl, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exec broken")
}

func TestExec_RejectsSelect(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Exec(context.Background(), queryir.Select{
		From:    queryir.Table{Name: "nodes_closure"},
		Columns: []queryir.Column{{Name: "depth"}},
	})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidArgument(err))
}

func TestQuery_InvalidQueryIsInvalidArgument(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Query(context.Background(), queryir.Select{From: queryir.Table{Name: "nodes_closure"}})
	require.Error(t, err)
	assert.True(t, ir.IsInvalidArgument(err))
}

func TestQuery_MissingTableIsStorageError(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Query(context.Background(), queryir.Select{
		From:    queryir.Table{Name: "no_such_table"},
		Columns: []queryir.Column{{Name: "id"}},
	})
	require.Error(t, err)
	assert.True(t, ir.IsStorageError(err))
	assert.False(t, ir.IsConstraintViolation(err))
}

func TestWithTransaction_Commit(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	err := s.WithTransaction(ctx, func(tx *Tx) error {
		return Closure(tx).Insert(ctx, []ir.ClosureRow{row("A", "A", 0), row("B", "B", 0)})
	})
	require.NoError(t, err)

	rows, err := Closure(s).Select(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	sentinel := errors.New("abort")

	err := s.WithTransaction(ctx, func(tx *Tx) error {
		if err := Closure(tx).Insert(ctx, []ir.ClosureRow{row("A", "A", 0)}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	rows, err := Closure(s).Select(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWithTransaction_RollbackOnConstraintFailure(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	err := s.WithTransaction(ctx, func(tx *Tx) error {
		c := Closure(tx)
		if err := c.Insert(ctx, []ir.ClosureRow{row("A", "A", 0)}); err != nil {
			return err
		}
		return c.Insert(ctx, []ir.ClosureRow{row("A", "A", 0)})
	})
	require.Error(t, err)
	assert.True(t, ir.IsConstraintViolation(err))

	rows, err := Closure(s).Select(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows, "no partial closure state is visible")
}

func TestWithTransaction_RollbackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.WithTransaction(ctx, func(tx *Tx) error {
			if err := Closure(tx).Insert(ctx, []ir.ClosureRow{row("A", "A", 0)}); err != nil {
				return err
			}
			panic("boom")
		})
	})

	rows, err := Closure(s).Select(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// The connection is usable after the panic.
	require.NoError(t, s.WithTransaction(ctx, func(tx *Tx) error {
		return Closure(tx).Insert(ctx, []ir.ClosureRow{row("B", "B", 0)})
	}))
}

func TestTxImplementsQuerier(t *testing.T) {
	var _ Querier = (*Store)(nil)
	var _ Querier = (*Tx)(nil)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("CLOSURETREE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLOSURETREE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	table := fmt.Sprintf("pgtest_%d", os.Getpid())
	s, err := Open(ctx, Config{Driver: DriverPostgres, DSN: dsn, Schema: ir.DefaultSchema(table)})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.DB().Exec("DROP TABLE IF EXISTS " + s.Schema().ClosureTable)
		s.DB().Exec("DELETE FROM closuretree_schema WHERE closure_table = $1", s.Schema().ClosureTable)
		s.Close()
	})
	assert.Equal(t, querysql.Postgres, s.Dialect())

	require.NoError(t, s.WithTransaction(ctx, func(tx *Tx) error {
		return Closure(tx).Insert(ctx, []ir.ClosureRow{row("A", "A", 0), row("B", "B", 0), row("A", "B", 1)})
	}))

	got, err := Closure(s).Select(ctx, byDescendant(s, "B"))
	require.NoError(t, err)
	assert.Equal(t, []ir.ClosureRow{row("B", "B", 0), row("A", "B", 1)}, got)

	err = Closure(s).Insert(ctx, []ir.ClosureRow{row("A", "B", 1)})
	require.Error(t, err)
	assert.True(t, ir.IsConstraintViolation(err))
}
