package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/closuretree/internal/ir"
	"github.com/roach88/closuretree/internal/nodes"
	"github.com/roach88/closuretree/internal/position"
)

func TestInsert_Root(t *testing.T) {
	f := newFixture(t)
	a := f.insert("A", ir.NoParent, position.Append)

	assert.Equal(t, []ir.ClosureRow{cr("A", "A", 0)}, f.rows())
	assert.Equal(t, 0, a.Position())
	assert.True(t, a.Exists())
	f.assertConsistent()
}

func TestInsert_ChildOfB(t *testing.T) {
	f := newFixture(t)
	f.sample()

	f.insert("D", "B", 0)

	assert.Equal(t, []string{"D:0"}, f.layout("B"))
	assert.Equal(t, []ir.ClosureRow{cr("D", "D", 0), cr("B", "D", 1), cr("A", "D", 2)}, f.rowsTo("D"))
	f.assertConsistent()
}

func TestInsert_OpensGap(t *testing.T) {
	f := newFixture(t)
	f.sample()

	x := f.insert("X", "A", 1)

	assert.Equal(t, 1, x.Position())
	assert.Equal(t, []string{"B:0", "X:1", "C:2"}, f.layout("A"))
	f.assertConsistent()
}

func TestInsert_ClampsPastEnd(t *testing.T) {
	f := newFixture(t)
	f.sample()

	f.insert("X", "A", 99)
	f.insert("Y", "C", 5)

	assert.Equal(t, []string{"B:0", "C:1", "X:2"}, f.layout("A"))
	assert.Equal(t, []string{"Y:0"}, f.layout("C"))
	f.assertConsistent()
}

func TestInsert_RootsArePositioned(t *testing.T) {
	f := newFixture(t)
	f.insert("A", ir.NoParent, position.Append)
	f.insert("G", ir.NoParent, position.Append)
	f.insert("F", ir.NoParent, 0)

	assert.Equal(t, []string{"F:0", "A:1", "G:2"}, f.layout(ir.NoParent))
	f.assertConsistent()
}

func TestInsert_Rejections(t *testing.T) {
	f := newFixture(t)
	f.sample()
	before := f.rows()

	err := f.eng.Insert(f.ctx, nodes.WithID("B", "dup"), "C", position.Append)
	assert.True(t, ir.IsInvalidArgument(err), "already in hierarchy: %v", err)

	err = f.eng.Insert(f.ctx, nodes.WithID("X", "X"), "missing", position.Append)
	assert.True(t, ir.IsNotFound(err))
	var coded *ir.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ir.NodeID("missing"), coded.NodeID)

	err = f.eng.Insert(f.ctx, nodes.WithID("X", "X"), "X", position.Append)
	assert.True(t, ir.IsInvalidArgument(err))

	err = f.eng.Insert(f.ctx, nodes.WithID("", ""), "A", position.Append)
	assert.True(t, ir.IsInvalidArgument(err))

	err = f.eng.Insert(f.ctx, nodes.WithID("X", "X"), "A", -3)
	assert.True(t, ir.IsInvalidArgument(err))

	assert.Equal(t, before, f.rows())
	_, err = f.repo.Get(f.ctx, f.st, "X")
	assert.True(t, ir.IsNotFound(err), "rejected node record never saved")
}

func TestMove_CUnderB(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("D", "B", 0)

	require.NoError(t, f.eng.Move(f.ctx, f.node("C"), "B", 1))

	assert.Equal(t, []ir.ClosureRow{cr("C", "C", 0), cr("B", "C", 1), cr("A", "C", 2)}, f.rowsTo("C"))
	assert.Equal(t, []string{"B:0"}, f.layout("A"))
	assert.Equal(t, []string{"D:0", "C:1"}, f.layout("B"))
	assert.Equal(t, 1, f.node("C").Position())
	f.assertConsistent()
}

func TestMove_FirstChildReflowsOldParent(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("E", "A", position.Append)

	require.NoError(t, f.eng.Move(f.ctx, f.node("B"), "C", position.Append))

	assert.Equal(t, []string{"C:0", "E:1"}, f.layout("A"))
	assert.Equal(t, []string{"B:0"}, f.layout("C"))
	f.assertConsistent()
}

func TestMove_SubtreeCarriesDescendants(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("D", "B", 0)
	f.insert("E", "D", 0)
	f.insert("G", "C", 0)

	require.NoError(t, f.eng.Move(f.ctx, f.node("B"), "G", 0))

	assert.Equal(t, []ir.ClosureRow{
		cr("E", "E", 0), cr("D", "E", 1), cr("B", "E", 2), cr("G", "E", 3), cr("C", "E", 4), cr("A", "E", 5),
	}, f.rowsTo("E"))
	assert.Equal(t, []string{"C:0"}, f.layout("A"))
	f.assertConsistent()
}

func TestMove_ToRootKeepsSelfRows(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("D", "B", 0)

	require.NoError(t, f.eng.MakeRoot(f.ctx, f.node("B"), position.Append))

	assert.Equal(t, []ir.ClosureRow{cr("B", "B", 0)}, f.rowsTo("B"))
	assert.Equal(t, []ir.ClosureRow{cr("D", "D", 0), cr("B", "D", 1)}, f.rowsTo("D"))
	assert.Equal(t, []string{"A:0", "B:1"}, f.layout(ir.NoParent))
	assert.Equal(t, []string{"C:0"}, f.layout("A"))
	f.assertConsistent()
}

func TestMove_RootUnderNode(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("G", ir.NoParent, position.Append)
	f.insert("H", "G", 0)

	require.NoError(t, f.eng.Move(f.ctx, f.node("G"), "C", 0))

	assert.Equal(t, []string{"A:0"}, f.layout(ir.NoParent))
	assert.Equal(t, []ir.ClosureRow{cr("H", "H", 0), cr("G", "H", 1), cr("C", "H", 2), cr("A", "H", 3)}, f.rowsTo("H"))
	f.assertConsistent()
}

func TestMove_SameParentReorders(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("E", "A", position.Append)

	require.NoError(t, f.eng.Move(f.ctx, f.node("E"), "A", 0))
	assert.Equal(t, []string{"E:0", "B:1", "C:2"}, f.layout("A"))

	require.NoError(t, f.eng.Reorder(f.ctx, f.node("E"), position.Append))
	assert.Equal(t, []string{"B:0", "C:1", "E:2"}, f.layout("A"))

	require.NoError(t, f.eng.Reorder(f.ctx, f.node("C"), 0))
	assert.Equal(t, []string{"C:0", "B:1", "E:2"}, f.layout("A"))
	assert.Equal(t, 0, f.node("C").Position())
	f.assertConsistent()
}

func TestMove_NoopWhenUnchanged(t *testing.T) {
	f := newFixture(t)
	f.sample()
	before := f.rows()
	inserted := testutil.ToFloat64(closureRowsTotal.WithLabelValues("inserted"))
	deleted := testutil.ToFloat64(closureRowsTotal.WithLabelValues("deleted"))

	require.NoError(t, f.eng.Move(f.ctx, f.node("C"), "A", 1))
	require.NoError(t, f.eng.Move(f.ctx, f.node("C"), "A", position.Append))

	assert.Equal(t, before, f.rows())
	assert.Equal(t, []string{"B:0", "C:1"}, f.layout("A"))
	assert.Equal(t, inserted, testutil.ToFloat64(closureRowsTotal.WithLabelValues("inserted")))
	assert.Equal(t, deleted, testutil.ToFloat64(closureRowsTotal.WithLabelValues("deleted")))
}

func TestMove_CycleDetected(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("D", "B", 0)
	before := f.rows()
	cycles := testutil.ToFloat64(operationsTotal.WithLabelValues("move", "cycle_detected"))

	err := f.eng.Move(f.ctx, f.node("A"), "D", 0)
	require.Error(t, err)
	assert.True(t, ir.IsCycleError(err))
	var coded *ir.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, ir.NodeID("A"), coded.NodeID)

	err = f.eng.Move(f.ctx, f.node("B"), "B", 0)
	assert.True(t, ir.IsCycleError(err))

	err = f.eng.Move(f.ctx, f.node("B"), "D", 0)
	assert.True(t, ir.IsCycleError(err))

	assert.Equal(t, before, f.rows())
	assert.Equal(t, cycles+3, testutil.ToFloat64(operationsTotal.WithLabelValues("move", "cycle_detected")))
	f.assertConsistent()
}

func TestMove_NotFound(t *testing.T) {
	f := newFixture(t)
	f.sample()

	err := f.eng.Move(f.ctx, nodes.WithID("ghost", ""), "A", 0)
	assert.True(t, ir.IsNotFound(err))

	err = f.eng.Move(f.ctx, f.node("B"), "ghost", 0)
	assert.True(t, ir.IsNotFound(err))

	err = f.eng.Reorder(f.ctx, nodes.WithID("ghost", ""), 0)
	assert.True(t, ir.IsNotFound(err))
}

func TestMove_RoundTripRestoresState(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("D", "B", 0)
	f.insert("E", "B", 1)
	f.insert("F", "C", 0)
	f.insert("G", ir.NoParent, position.Append)
	f.insert("H", "G", 0)

	snapshot := func() ([]ir.ClosureRow, []ir.NodeRecord) {
		recs, err := f.eng.records(f.ctx, f.eng.Planner().Nodes())
		require.NoError(t, err)
		return f.rows(), recs
	}
	rows0, recs0 := snapshot()

	moves := []struct {
		id     ir.NodeID
		parent ir.NodeID
		pos    int
	}{
		{"B", "F", 0},
		{"B", "H", position.Append},
		{"D", ir.NoParent, 0},
		{"C", "G", 0},
		{"E", "A", 0},
		{"H", "A", 1},
	}
	for _, m := range moves {
		name := fmt.Sprintf("%s->%s@%d", m.id, m.parent, m.pos)
		oldParent, oldPos, err := f.eng.locate(f.ctx, "test", m.id)
		require.NoError(t, err, name)

		require.NoError(t, f.eng.Move(f.ctx, f.node(m.id), m.parent, m.pos), name)
		f.assertConsistent()

		require.NoError(t, f.eng.Move(f.ctx, f.node(m.id), oldParent, oldPos), name)
		f.assertConsistent()

		rows, recs := snapshot()
		assert.Equal(t, rows0, rows, name)
		assert.Equal(t, recs0, recs, name)
	}
}

func TestDelete_SubtreeOfB(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("D", "B", 0)

	require.NoError(t, f.eng.Delete(f.ctx, "B", true))

	assert.Equal(t, []ir.ClosureRow{cr("A", "A", 0), cr("C", "C", 0), cr("A", "C", 1)}, f.rows())
	assert.Equal(t, []string{"C:0"}, f.layout("A"))
	for _, id := range []ir.NodeID{"B", "D"} {
		_, err := f.repo.Get(f.ctx, f.st, id)
		assert.True(t, ir.IsNotFound(err), "record %s removed", id)
	}
	f.assertConsistent()
}

func TestDelete_Soft(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("D", "B", 0)

	require.NoError(t, f.eng.Delete(f.ctx, "B", false))

	for _, id := range []ir.NodeID{"B", "D"} {
		rec, err := f.repo.Get(f.ctx, f.st, id)
		require.NoError(t, err)
		assert.True(t, rec.Deleted(), "record %s soft-deleted", id)
		assert.Empty(t, f.rowsTo(id))
	}
	assert.Equal(t, []string{"C:0"}, f.layout("A"))
	f.assertConsistent()
}

func TestDelete_MissingIsNoop(t *testing.T) {
	f := newFixture(t)
	f.sample()
	before := f.rows()

	require.NoError(t, f.eng.Delete(f.ctx, "ghost", true))
	require.NoError(t, f.eng.Delete(f.ctx, "B", true))
	require.NoError(t, f.eng.Delete(f.ctx, "B", true))

	assert.NotEqual(t, before, f.rows())
	assert.Equal(t, []string{"C:0"}, f.layout("A"))
}

func TestDelete_Root(t *testing.T) {
	f := newFixture(t)
	f.sample()
	f.insert("G", ir.NoParent, position.Append)

	require.NoError(t, f.eng.Delete(f.ctx, "A", true))

	assert.Equal(t, []ir.ClosureRow{cr("G", "G", 0)}, f.rows())
	assert.Equal(t, []string{"G:0"}, f.layout(ir.NoParent))
	f.assertConsistent()
}

func TestAddChild_InsertsThenMoves(t *testing.T) {
	f := newFixture(t)
	f.sample()

	x := nodes.WithID("X", "X")
	require.NoError(t, f.eng.AddChild(f.ctx, "B", x, position.Append))
	assert.Equal(t, []string{"X:0"}, f.layout("B"))
	assert.True(t, x.Exists())

	require.NoError(t, f.eng.AddChild(f.ctx, "C", x, position.Append))
	assert.Empty(t, f.layout("B"))
	assert.Equal(t, []string{"X:0"}, f.layout("C"))
	f.assertConsistent()
}

func TestCreateTree_Nested(t *testing.T) {
	f := newFixture(t)
	f.sample()

	input := []TreeInput{
		{Node: nodes.WithID("P", "P"), Children: []TreeInput{
			{Node: nodes.WithID("Q", "Q"), Children: []TreeInput{
				{Node: nodes.WithID("R", "R")},
			}},
			{Node: nodes.WithID("S", "S")},
		}},
		{Node: nodes.WithID("T", "T")},
	}
	require.NoError(t, f.eng.CreateTree(f.ctx, "C", input))

	assert.Equal(t, []string{"P:0", "T:1"}, f.layout("C"))
	assert.Equal(t, []string{"Q:0", "S:1"}, f.layout("P"))
	assert.Equal(t, []ir.ClosureRow{cr("R", "R", 0), cr("Q", "R", 1), cr("P", "R", 2), cr("C", "R", 3), cr("A", "R", 4)}, f.rowsTo("R"))
	f.assertConsistent()
}

func TestCreateTree_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.sample()
	before := f.rows()

	input := []TreeInput{
		{Node: nodes.WithID("P", "P"), Children: []TreeInput{
			{Node: nodes.WithID("B", "duplicate")},
		}},
	}
	err := f.eng.CreateTree(f.ctx, "C", input)
	assert.True(t, ir.IsInvalidArgument(err))
	assert.Equal(t, before, f.rows())

	err = f.eng.CreateTree(f.ctx, ir.NoParent, []TreeInput{{}})
	assert.True(t, ir.IsInvalidArgument(err))
}

func TestInsert_ConcurrentWriters(t *testing.T) {
	f := newFixture(t)
	f.sample()

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				n := nodes.WithID(ir.NodeID(fmt.Sprintf("w%d-%02d", w, i)), "")
				errs <- f.eng.Insert(context.Background(), n, "A", 0)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := f.eng.CountChildren(f.ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2+writers*perWriter, count)
	f.assertConsistent()
}
