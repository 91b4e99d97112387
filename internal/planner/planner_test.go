package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/queryir"
	"github.com/roach88/closuretree/internal/querysql"
)

const nodeCols = "n.id AS node_id, n.position AS node_position, n.label"
const closureCols = "c.ancestor, c.descendant, c.depth"
const siblingOrder = "n.position ASC, n.id COLLATE BINARY ASC"

func newPlanner(t *testing.T) *Planner {
	t.Helper()
	s := ir.DefaultSchema("nodes")
	s.Attributes = []string{"label"}
	p, err := New(s)
	require.NoError(t, err)
	return p
}

func compile(t *testing.T, q queryir.Query) (string, []any) {
	t.Helper()
	sql, params, err := querysql.NewCompiler(querysql.SQLite).Compile(q)
	require.NoError(t, err)
	return sql, params
}

func deleteWhere(p *Planner, pred queryir.Predicate) queryir.Delete {
	return queryir.Delete{Table: p.Schema().ClosureTable, Filter: pred}
}

func TestNew_RejectsReservedAttribute(t *testing.T) {
	for _, attr := range []string{"depth", "node_id", "id", "position"} {
		s := ir.DefaultSchema("nodes")
		s.Attributes = []string{attr}
		_, err := New(s)
		require.Error(t, err, attr)
		assert.True(t, ir.IsInvalidArgument(err))
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	p, err := New(ir.Schema{NodeTable: "pages"})
	require.NoError(t, err)
	assert.Equal(t, "pages_closure", p.Schema().ClosureTable)
}

func TestParent(t *testing.T) {
	p := newPlanner(t)
	sql, params := compile(t, p.Parent("D"))
	assert.Equal(t,
		"SELECT "+nodeCols+", "+closureCols+" FROM nodes AS n"+
			" INNER JOIN nodes_closure AS c ON c.ancestor = n.id"+
			" WHERE c.descendant = ? AND c.depth = ?",
		sql)
	assert.Equal(t, []any{"D", int64(1)}, params)
}

func TestAncestors(t *testing.T) {
	p := newPlanner(t)
	sql, params := compile(t, p.Ancestors("D"))
	assert.Equal(t,
		"SELECT "+nodeCols+", "+closureCols+" FROM nodes AS n"+
			" INNER JOIN nodes_closure AS c ON c.ancestor = n.id"+
			" WHERE c.descendant = ? AND c.depth > ?"+
			" ORDER BY c.depth ASC",
		sql)
	assert.Equal(t, []any{"D", int64(0)}, params)
}

func TestChildren(t *testing.T) {
	p := newPlanner(t)
	sql, params := compile(t, p.Children("B"))
	assert.Equal(t,
		"SELECT "+nodeCols+", "+closureCols+" FROM nodes AS n"+
			" INNER JOIN nodes_closure AS c ON c.descendant = n.id"+
			" WHERE c.ancestor = ? AND c.depth = ?"+
			" ORDER BY "+siblingOrder,
		sql)
	assert.Equal(t, []any{"B", int64(1)}, params)
}

func TestDescendants(t *testing.T) {
	p := newPlanner(t)

	sql, params := compile(t, p.Descendants("A", 0))
	assert.Equal(t,
		"SELECT "+nodeCols+", "+closureCols+" FROM nodes AS n"+
			" INNER JOIN nodes_closure AS c ON c.descendant = n.id"+
			" WHERE c.ancestor = ? AND c.depth > ?"+
			" ORDER BY c.depth ASC, "+siblingOrder,
		sql)
	assert.Equal(t, []any{"A", int64(0)}, params)

	sql, params = compile(t, p.Descendants("A", 2))
	assert.Contains(t, sql, "WHERE c.ancestor = ? AND c.depth > ? AND c.depth = ?")
	assert.Equal(t, []any{"A", int64(0), int64(2)}, params)
}

func TestRoots(t *testing.T) {
	p := newPlanner(t)
	sql, params := compile(t, p.Roots())
	assert.Equal(t,
		"SELECT "+nodeCols+" FROM nodes AS n"+
			" INNER JOIN nodes_closure AS c ON c.descendant = n.id"+
			" GROUP BY n.id, n.position, n.label"+
			" HAVING SUM(CASE WHEN c.depth > ? THEN 1 ELSE 0 END) = ?"+
			" ORDER BY "+siblingOrder,
		sql)
	assert.Equal(t, []any{int64(0), int64(0)}, params)
}

func TestSiblings(t *testing.T) {
	p := newPlanner(t)

	tests := []struct {
		dir ir.Direction
		op  string
	}{
		{ir.DirectionPrev, "<"},
		{ir.DirectionNext, ">"},
		{ir.DirectionBoth, "<>"},
	}
	for _, tc := range tests {
		t.Run(string(tc.dir), func(t *testing.T) {
			sql, params := compile(t, p.Siblings("A", "C", 1, tc.dir))
			assert.Contains(t, sql, "WHERE c.ancestor = ? AND c.depth = ? AND n.id <> ? AND n.position "+tc.op+" ?")
			assert.Equal(t, []any{"A", int64(1), "C", int64(1)}, params)
		})
	}
}

func TestSiblingsOfRoot(t *testing.T) {
	p := newPlanner(t)
	sql, params := compile(t, p.Siblings(ir.NoParent, "A", 0, ir.DirectionNext))
	assert.Contains(t, sql, "WHERE n.id <> ? AND n.position > ? GROUP BY")
	assert.Contains(t, sql, "HAVING SUM(CASE WHEN c.depth > ?")
	assert.Equal(t, []any{"A", int64(0), int64(0), int64(0)}, params)
}

func TestChildrenAtPosition(t *testing.T) {
	p := newPlanner(t)
	sql, params := compile(t, p.Children("A", p.AtPosition(2)))
	assert.Contains(t, sql, "WHERE c.ancestor = ? AND c.depth = ? AND n.position = ?")
	assert.Equal(t, []any{"A", int64(1), int64(2)}, params)

	sql, params = compile(t, p.Children("A", p.PositionBetween(1, 3)))
	assert.Contains(t, sql, "AND n.position >= ? AND n.position <= ?")
	assert.Equal(t, []any{"A", int64(1), int64(1), int64(3)}, params)
}

func TestTree(t *testing.T) {
	p := newPlanner(t)
	treeOrder := " ORDER BY " + siblingOrder + ", c.depth ASC"

	sql, params := compile(t, p.Tree(nil))
	assert.Equal(t,
		"SELECT "+nodeCols+", "+closureCols+" FROM nodes AS n"+
			" INNER JOIN nodes_closure AS c ON c.descendant = n.id"+treeOrder,
		sql)
	assert.Empty(t, params)

	sql, params = compile(t, p.Tree(p.NodeEquals("label", ir.IRString("x"))))
	assert.Contains(t, sql, " WHERE n.label = ?"+treeOrder)
	assert.Equal(t, []any{"x"}, params)
}

func TestScopedTrees(t *testing.T) {
	p := newPlanner(t)

	sql, params := compile(t, p.DescendantsTree("B"))
	assert.Contains(t, sql,
		"INNER JOIN nodes_closure AS c ON c.descendant = n.id"+
			" INNER JOIN nodes_closure AS s ON s.descendant = n.id WHERE s.ancestor = ?")
	assert.Equal(t, []any{"B"}, params)

	sql, params = compile(t, p.AncestorsTree("D"))
	assert.Contains(t, sql, "INNER JOIN nodes_closure AS s ON s.ancestor = n.id WHERE s.descendant = ?")
	assert.Equal(t, []any{"D"}, params)
}

func TestNodeAndNodes(t *testing.T) {
	p := newPlanner(t)

	sql, params := compile(t, p.Node("A"))
	assert.Equal(t,
		"SELECT "+nodeCols+" FROM nodes AS n INNER JOIN nodes_closure AS c ON c.descendant = n.id"+
			" WHERE c.ancestor = ? AND c.descendant = ?",
		sql)
	assert.Equal(t, []any{"A", "A"}, params)

	sql, params = compile(t, p.Nodes())
	assert.Contains(t, sql, "WHERE c.depth = ? ORDER BY")
	assert.Equal(t, []any{int64(0)}, params)
}

func TestSever(t *testing.T) {
	p := newPlanner(t)
	sql, params := compile(t, deleteWhere(p, p.Sever("C")))
	assert.Equal(t,
		"DELETE FROM nodes_closure"+
			" WHERE descendant IN (SELECT descendant FROM nodes_closure WHERE ancestor = ?)"+
			" AND ancestor IN (SELECT ancestor FROM nodes_closure WHERE descendant = ? AND depth > ?)",
		sql)
	assert.Equal(t, []any{"C", "C", int64(0)}, params)
}

func TestPurge(t *testing.T) {
	p := newPlanner(t)
	sql, params := compile(t, deleteWhere(p, p.Purge("B")))
	assert.Equal(t,
		"DELETE FROM nodes_closure WHERE descendant IN (SELECT descendant FROM nodes_closure WHERE ancestor = ?)",
		sql)
	assert.Equal(t, []any{"B"}, params)
}

func TestClosurePredicates(t *testing.T) {
	p := newPlanner(t)

	tests := []struct {
		name   string
		pred   queryir.Predicate
		where  string
		params []any
	}{
		{"self row", p.SelfRow("A"), "ancestor = ? AND descendant = ?", []any{"A", "A"}},
		{"ancestor chain", p.AncestorChain("B"), "descendant = ?", []any{"B"}},
		{"strict ancestors", p.StrictAncestors("B"), "descendant = ? AND depth > ?", []any{"B", int64(0)}},
		{"parent link", p.ParentLink("B"), "descendant = ? AND depth = ?", []any{"B", int64(1)}},
		{"subtree", p.Subtree("B"), "ancestor = ?", []any{"B"}},
		{"in subtree", p.InSubtree("B", "D"), "ancestor = ? AND descendant = ?", []any{"B", "D"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sql, params := compile(t, deleteWhere(p, tc.pred))
			assert.Equal(t, "DELETE FROM nodes_closure WHERE "+tc.where, sql)
			assert.Equal(t, tc.params, params)
		})
	}
}

func TestRecords(t *testing.T) {
	p := newPlanner(t)

	rows := []ir.IRObject{
		{
			ColNodeID: ir.IRString("D"), ColNodePosition: ir.IRInt(0), "label": ir.IRString("Dee"),
			ColAncestor: ir.IRString("B"), ColDescendant: ir.IRString("D"), ColDepth: ir.IRInt(1),
		},
		{ColNodeID: ir.IRString("A"), ColNodePosition: ir.IRInt(2)},
	}
	recs, err := p.Records(rows)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, ir.NodeRecord{
		ID:         "D",
		Position:   0,
		Attributes: ir.IRObject{"label": ir.IRString("Dee")},
		Closure:    &ir.ClosureMetadata{Ancestor: "B", Descendant: "D", Depth: 1},
	}, recs[0])

	assert.Equal(t, ir.NodeID("A"), recs[1].ID)
	assert.Equal(t, ir.IRObject{"label": ir.IRNull{}}, recs[1].Attributes)
	assert.Nil(t, recs[1].Closure)
}

func TestRecordsRejectMissingColumns(t *testing.T) {
	p := newPlanner(t)

	_, err := p.Records([]ir.IRObject{{ColNodePosition: ir.IRInt(0)}})
	require.Error(t, err)

	_, err = p.Records([]ir.IRObject{{ColNodeID: ir.IRString("A")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ColNodePosition)
}
