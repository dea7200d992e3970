package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/graph"
)

func TestNearestOnNode(t *testing.T) {
	s, a, _, _, _, _ := scenarioStore(t)
	r := NewResolver(s, testGrid)

	n, err := r.Nearest(a, 0)
	require.NoError(t, err)
	assert.True(t, n.Found)
	assert.Equal(t, a, n.Node)
	assert.Equal(t, 0, n.K)
	assert.Zero(t, n.DistanceMeters)
}

func TestNearestBridgesGap(t *testing.T) {
	s := buildStore(t, graph.Segment{Cells: line(0, 0, 10), Weight: 1})
	r := NewResolver(s, testGrid)

	query := hex(5, 3) // three rows north of the line
	tests := []struct {
		maxK  int
		found bool
	}{
		{0, false},
		{2, false},
		{3, true},
		{10, true},
	}
	for _, tt := range tests {
		n, err := r.Nearest(query, tt.maxK)
		require.NoError(t, err)
		assert.Equal(t, tt.found, n.Found, "maxK=%d", tt.maxK)
		assert.Equal(t, query, n.Query)
		if !n.Found {
			continue
		}
		assert.Equal(t, 3, n.K, "never a farther node when a closer one exists")
		assert.Equal(t, 3, testGrid.GridDistance(query, n.Node))
		assert.Positive(t, n.DistanceMeters)
	}
}

func TestNearestTieBreakIsSmallestCell(t *testing.T) {
	s := buildStore(t, graph.Segment{Cells: line(0, 0, 10), Weight: 1})
	r := NewResolver(s, testGrid)
	query := hex(5, 2)

	all, err := r.NearestAll(query, 5)
	require.NoError(t, err)
	require.Greater(t, len(all), 1)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Node, all[i].Node)
		assert.Equal(t, all[0].K, all[i].K)
	}

	n, err := r.Nearest(query, 5)
	require.NoError(t, err)
	assert.Equal(t, all[0].Node, n.Node)

	// Same answer every time.
	for range 5 {
		again, err := r.Nearest(query, 5)
		require.NoError(t, err)
		assert.Equal(t, n, again)
	}
}

func TestNearestErrors(t *testing.T) {
	s := buildStore(t, graph.Segment{Cells: line(0, 0, 3), Weight: 1})
	r := NewResolver(s, testGrid)

	_, err := r.Nearest(hex(0, 0), -1)
	assert.ErrorIs(t, err, ErrInvalidRadius)

	_, err = r.Nearest(0, 3)
	assert.ErrorIs(t, err, ErrInvalidCell)

	_, err = r.Nearest(testGrid.Encode(0, 0, testRes-1), 3)
	assert.ErrorIs(t, err, graph.ErrResolutionMismatch)
}

func TestNearestEmptyGraph(t *testing.T) {
	s := buildStore(t)
	r := NewResolver(s, testGrid)

	n, err := r.Nearest(hex(0, 0), 5)
	require.NoError(t, err)
	assert.False(t, n.Found)
}

func TestNearestMany(t *testing.T) {
	s := buildStore(t, graph.Segment{Cells: line(0, 0, 10), Weight: 1})
	r := NewResolver(s, testGrid)

	queries := []cellindex.Cell{hex(2, 0), hex(5, 3), hex(40, 40), hex(9, 1), hex(2, 0)}
	got, err := r.NearestMany(context.Background(), queries, 4, 3)
	require.NoError(t, err)
	require.Len(t, got, len(queries))

	for i, q := range queries {
		want, err := r.Nearest(q, 4)
		require.NoError(t, err)
		assert.Equal(t, want, got[i], "query %d", i)
	}
	assert.False(t, got[2].Found)

	// Order independence: reversed input gives reversed output.
	reversed := make([]cellindex.Cell, len(queries))
	for i, q := range queries {
		reversed[len(queries)-1-i] = q
	}
	back, err := r.NearestMany(context.Background(), reversed, 4, 1)
	require.NoError(t, err)
	for i := range queries {
		assert.Equal(t, got[i], back[len(queries)-1-i])
	}

	_, err = r.NearestMany(context.Background(), []cellindex.Cell{hex(1, 1), 0}, 4, 2)
	assert.ErrorIs(t, err, ErrInvalidCell)
}
