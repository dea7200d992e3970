package spatial

import (
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h3_router/pkg/cellindex"
)

func gridCells(g cellindex.HexGrid, n int) []cellindex.Cell {
	var cells []cellindex.Cell
	for q := range n {
		for r := range n {
			cells = append(cells, g.Encode(q, r, 5))
		}
	}
	return cells
}

func TestSearch(t *testing.T) {
	g := cellindex.NewHexGrid(0.01)
	cells := gridCells(g, 10)
	x := New(slices.Values(cells), g)
	require.Equal(t, len(cells), x.Len())

	// Box around a single centroid.
	lat, lng := g.LatLng(cells[42])
	eps := 1e-6
	got, truncated := x.Search(orb.Bound{Min: orb.Point{lng - eps, lat - eps}, Max: orb.Point{lng + eps, lat + eps}}, 0)
	assert.False(t, truncated)
	require.Len(t, got, 1)
	assert.Equal(t, cells[42], got[0].Cell)
	assert.Equal(t, lat, got[0].Lat)
	assert.Equal(t, lng, got[0].Lng)

	// Box around everything.
	all, _ := x.Search(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}, 0)
	require.Len(t, all, len(cells))
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Cell, all[i].Cell)
	}

	// Nothing far away.
	none, _ := x.Search(orb.Bound{Min: orb.Point{50, 50}, Max: orb.Point{51, 51}}, 0)
	assert.Empty(t, none)
}

func TestSearchLimit(t *testing.T) {
	g := cellindex.NewHexGrid(0.01)
	x := New(slices.Values(gridCells(g, 5)), g)

	got, truncated := x.Search(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}, 7)
	assert.True(t, truncated)
	assert.Len(t, got, 7)

	got, truncated = x.Search(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}, 25)
	assert.False(t, truncated)
	assert.Len(t, got, 25)
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("1.2, 103.6,1.5,104.1")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{103.6, 1.2}, b.Min)
	assert.Equal(t, orb.Point{104.1, 1.5}, b.Max)

	for _, s := range []string{"", "1,2,3", "a,b,c,d", "1.5,103,1.2,104", "-91,0,0,0", "0,0,1,181"} {
		_, err := ParseBBox(s)
		assert.ErrorIs(t, err, ErrInvalidBBox, "%q", s)
	}
}
