package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h3_router/pkg/cellindex"
)

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind(5)

	// Initially all separate.
	for i := range uint32(5) {
		if uf.Find(i) != i {
			t.Errorf("Find(%d) = %d, want %d", i, uf.Find(i), i)
		}
	}

	uf.Union(0, 1)
	if uf.Find(0) != uf.Find(1) {
		t.Error("0 and 1 should be in same set")
	}

	uf.Union(2, 3)
	if uf.Find(0) == uf.Find(2) {
		t.Error("0 and 2 should be in different sets")
	}

	if uf.Union(1, 0) {
		t.Error("Union of an existing set should return false")
	}

	uf.Union(1, 3)
	if uf.Find(0) != uf.Find(3) {
		t.Error("0 and 3 should now be in same set")
	}
	if got := uf.Size(2); got != 4 {
		t.Errorf("Size(2) = %d, want 4", got)
	}
}

func TestLargestComponent(t *testing.T) {
	// Component 1: a bidirectional run of 6 cells. Component 2: 3 cells.
	s := mustBuild(t, testOptions(t),
		Segment{Cells: line(0, 0, 5), Weight: 1, Bidirectional: true},
		Segment{Cells: line(0, 10, 2), Weight: 2, Bidirectional: true},
	)
	require.Equal(t, 9, s.NodeCount())

	nodes := LargestComponent(s)
	require.Len(t, nodes, 6)
	for _, n := range nodes {
		_, r, _, ok := testGrid.Decode(s.Cells[n])
		require.True(t, ok)
		assert.Equal(t, 0, r)
	}
}

func TestLargestComponentDirectedTreatedAsUndirected(t *testing.T) {
	// One-way edges still join cells into one weak component.
	s := mustBuild(t, testOptions(t),
		Segment{Cells: line(0, 0, 3), Weight: 1},
		Segment{Cells: []cellindex.Cell{hex(0, 1), hex(0, 0)}, Weight: 1},
		Segment{Cells: line(0, 10, 1), Weight: 1},
	)
	assert.Len(t, LargestComponent(s), 5)
}

func TestLargestComponentEmpty(t *testing.T) {
	assert.Nil(t, LargestComponent(emptyStore()))
}

func TestFilterToComponent(t *testing.T) {
	s := mustBuild(t, testOptions(t),
		Segment{Cells: line(0, 0, 5), Weight: 1, Bidirectional: true},
		Segment{Cells: line(0, 10, 2), Weight: 2, Bidirectional: true},
	)

	filtered := FilterToComponent(s, LargestComponent(s))
	require.NoError(t, filtered.Validate())

	assert.Equal(t, 6, filtered.NodeCount())
	assert.Equal(t, 10, filtered.EdgeCount())
	assert.Equal(t, 2, filtered.LongEdgeCount())
	assert.False(t, filtered.HasNode(hex(0, 10)))

	geom, err := filtered.FullGeometry(hex(0, 0), hex(5, 0))
	require.NoError(t, err)
	assert.Equal(t, line(0, 0, 5), geom)

	// Long edges of the kept component survive unchanged.
	recompacted, err := Compact(filtered, testOptions(t))
	require.NoError(t, err)
	assert.Equal(t, filtered.LongNodes, recompacted.LongNodes)
	assert.Equal(t, filtered.LongWeight, recompacted.LongWeight)
}

func TestFilterToComponentEmpty(t *testing.T) {
	s := mustBuild(t, testOptions(t), Segment{Cells: line(0, 0, 2), Weight: 1})
	filtered := FilterToComponent(s, nil)
	assert.Equal(t, 0, filtered.NodeCount())
	require.NoError(t, filtered.Validate())
}
