package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/nodes"
	"github.com/roach88/closuretree/internal/position"
)

// queryFixture builds
//
//	A
//	  B
//	    D
//	  C
//	G
func queryFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.sample()
	f.insert("D", "B", 0)
	f.insert("G", ir.NoParent, position.Append)
	return f
}

func ids(recs []ir.NodeRecord) []ir.NodeID {
	out := make([]ir.NodeID, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// opCount sums the operations counter for op across result labels.
func opCount(op string) float64 {
	var total float64
	for _, result := range []string{"ok", "error", "invalid_argument", "not_found", "storage_error", "cycle_detected"} {
		total += testutil.ToFloat64(operationsTotal.WithLabelValues(op, result))
	}
	return total
}

func TestGet(t *testing.T) {
	f := queryFixture(t)

	rec, err := f.eng.Get(f.ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, ir.NodeID("C"), rec.ID)
	assert.Equal(t, 1, rec.Position)
	assert.Equal(t, ir.IRObject{nodes.LabelColumn: ir.IRString("C")}, rec.Attributes)
	assert.Nil(t, rec.Closure)

	_, err = f.eng.Get(f.ctx, "ghost")
	assert.True(t, ir.IsNotFound(err))
}

func TestParent(t *testing.T) {
	f := queryFixture(t)

	rec, ok, err := f.eng.Parent(f.ctx, "D")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NodeID("B"), rec.ID)
	assert.Equal(t, &ir.ClosureMetadata{Ancestor: "B", Descendant: "D", Depth: 1}, rec.Closure)

	_, ok, err = f.eng.Parent(f.ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAncestors_NearestFirst(t *testing.T) {
	f := queryFixture(t)

	recs, err := f.eng.Ancestors(f.ctx, "D")
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"B", "A"}, ids(recs))
	assert.Equal(t, 2, recs[1].Closure.Depth)

	recs, err = f.eng.Ancestors(f.ctx, "G")
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestChildrenAndDescendants(t *testing.T) {
	f := queryFixture(t)

	recs, err := f.eng.Children(f.ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"B", "C"}, ids(recs))

	recs, err = f.eng.Descendants(f.ctx, "A", 0)
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"B", "C", "D"}, ids(recs))

	recs, err = f.eng.Descendants(f.ctx, "A", 2)
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"D"}, ids(recs))

	recs, err = f.eng.Descendants(f.ctx, "D", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSiblings_Directions(t *testing.T) {
	f := queryFixture(t)
	f.insert("E", "A", position.Append)

	cases := []struct {
		dir  ir.Direction
		want []ir.NodeID
	}{
		{ir.DirectionPrev, []ir.NodeID{"B"}},
		{ir.DirectionNext, []ir.NodeID{"E"}},
		{ir.DirectionBoth, []ir.NodeID{"B", "E"}},
	}
	for _, tc := range cases {
		recs, err := f.eng.Siblings(f.ctx, "C", tc.dir)
		require.NoError(t, err, tc.dir)
		assert.Equal(t, tc.want, ids(recs), tc.dir)
	}

	recs, err := f.eng.Siblings(f.ctx, "A", ir.DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"G"}, ids(recs), "roots are siblings")
}

func TestSiblings_InvalidDirection(t *testing.T) {
	f := queryFixture(t)
	errs := opCount("siblings")

	_, err := f.eng.Siblings(f.ctx, "ghost", ir.Direction("sideways"))
	assert.True(t, ir.IsInvalidArgument(err))
	assert.Equal(t, errs, opCount("siblings"), "rejected before any query")

	_, err = f.eng.Siblings(f.ctx, "ghost", ir.DirectionBoth)
	assert.True(t, ir.IsNotFound(err))
}

func TestRoots(t *testing.T) {
	f := queryFixture(t)

	recs, err := f.eng.Roots(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"A", "G"}, ids(recs))
}

func TestAccessors(t *testing.T) {
	f := queryFixture(t)
	ctx := f.ctx

	root, err := f.eng.IsRoot(ctx, "A")
	require.NoError(t, err)
	assert.True(t, root)
	root, err = f.eng.IsRoot(ctx, "D")
	require.NoError(t, err)
	assert.False(t, root)
	_, err = f.eng.IsRoot(ctx, "ghost")
	assert.True(t, ir.IsNotFound(err))

	depth, err := f.eng.Depth(ctx, "D")
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
	depth, err = f.eng.Depth(ctx, "G")
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
	_, err = f.eng.Depth(ctx, "ghost")
	assert.True(t, ir.IsNotFound(err))

	count, err := f.eng.CountChildren(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	has, err := f.eng.HasChildren(ctx, "D")
	require.NoError(t, err)
	assert.False(t, has)

	rec, ok, err := f.eng.ChildAt(ctx, "A", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NodeID("C"), rec.ID)
	_, ok, err = f.eng.ChildAt(ctx, "A", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, ok, err = f.eng.FirstChild(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NodeID("B"), rec.ID)
	rec, ok, err = f.eng.LastChild(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NodeID("C"), rec.ID)
	_, ok, err = f.eng.LastChild(ctx, "D")
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := f.eng.ChildrenRange(ctx, "A", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"C"}, ids(recs))

	rec, ok, err = f.eng.SiblingAt(ctx, "B", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NodeID("C"), rec.ID)
	rec, ok, err = f.eng.SiblingAt(ctx, "A", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NodeID("G"), rec.ID)

	rec, ok, err = f.eng.PrevSibling(ctx, "C")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NodeID("B"), rec.ID)
	_, ok, err = f.eng.NextSibling(ctx, "C")
	require.NoError(t, err)
	assert.False(t, ok)
	rec, ok, err = f.eng.NextSibling(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.NodeID("G"), rec.ID)
}

func TestTree(t *testing.T) {
	f := queryFixture(t)

	forest, err := f.eng.Tree(f.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"A", "B", "D", "C", "G"}, forest.IDs())
	d, ok := forest.Find("D")
	require.True(t, ok)
	assert.Equal(t, 2, d.Depth)
	assert.Equal(t, ir.IRString("D"), d.Record.Attributes[nodes.LabelColumn])

	forest, err = f.eng.Tree(f.ctx, f.eng.Planner().NodeEquals(nodes.LabelColumn, ir.IRString("C")))
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"C"}, forest.IDs())

	forest, err = f.eng.DescendantsTree(f.ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"B", "D"}, forest.IDs())
	require.Len(t, forest.Roots(), 1)

	forest, err = f.eng.AncestorsTree(f.ctx, "D")
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{"A", "B", "D"}, forest.IDs())
}
