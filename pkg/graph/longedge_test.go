package graph

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h3_router/pkg/cellindex"
)

// randomSegments produces a deterministic tangle of short walks on the grid
// with a few distinct weights, so branches, weight changes and cycles all occur.
func randomSegments(seed uint64, n int) []Segment {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	weights := []float64{1, 1, 1, 2, 3}
	segs := make([]Segment, 0, n)
	for range n {
		q, r := rng.IntN(12), rng.IntN(12)
		cells := []cellindex.Cell{hex(q, r)}
		for range 1 + rng.IntN(8) {
			d := cellindex.HexDirections[rng.IntN(6)]
			q, r = q+d[0], r+d[1]
			next := hex(q, r)
			if next == cells[len(cells)-1] || slices.Contains(cells, next) {
				break
			}
			cells = append(cells, next)
		}
		segs = append(segs, Segment{
			Cells:         cells,
			Weight:        weights[rng.IntN(len(weights))],
			Bidirectional: rng.IntN(3) == 0,
		})
	}
	return segs
}

func TestCompactIdempotent(t *testing.T) {
	opts := testOptions(t)
	opts.Conflicts = ConflictKeepMinimum

	for seed := range uint64(20) {
		s := mustBuild(t, opts, randomSegments(seed, 40)...)

		once, err := Compact(s, opts)
		require.NoError(t, err)
		twice, err := Compact(once, opts)
		require.NoError(t, err)

		assert.Equal(t, s, once, "seed %d: Build already compacts", seed)
		assert.Equal(t, once, twice, "seed %d", seed)
		require.NoError(t, twice.Validate())
	}
}

func TestCompactPreservesPlainAdjacency(t *testing.T) {
	opts := testOptions(t)
	opts.Conflicts = ConflictKeepMinimum
	opts.DisableCompaction = true
	plain := mustBuild(t, opts, randomSegments(7, 60)...)

	compacted, err := Compact(plain, opts)
	require.NoError(t, err)

	assert.Equal(t, plain.Cells, compacted.Cells)
	assert.Equal(t, plain.FirstOut, compacted.FirstOut)
	assert.Equal(t, plain.Head, compacted.Head)
	assert.Equal(t, plain.Weight, compacted.Weight)
}

func TestCompactWorkerCountDoesNotMatter(t *testing.T) {
	segs := randomSegments(3, 80)
	opts := testOptions(t)
	opts.Conflicts = ConflictKeepMinimum

	opts.Workers = 1
	serial := mustBuild(t, opts, segs...)
	opts.Workers = 8
	parallel := mustBuild(t, opts, segs...)

	assert.Equal(t, serial, parallel)
}

func TestCompactStopsAtBranch(t *testing.T) {
	// Y shape: 0..3 east, then 3 forks to (4,0) and (3,1).
	s := mustBuild(t, testOptions(t),
		Segment{Cells: line(0, 0, 4), Weight: 1},
		Segment{Cells: []cellindex.Cell{hex(3, 0), hex(3, 1), hex(3, 2), hex(3, 3)}, Weight: 1},
	)

	require.Equal(t, 2, s.LongEdgeCount())
	geom, err := s.FullGeometry(hex(0, 0), hex(3, 0))
	require.NoError(t, err)
	assert.Equal(t, line(0, 0, 3), geom)

	geom, err = s.FullGeometry(hex(3, 0), hex(3, 3))
	require.NoError(t, err)
	assert.Len(t, geom, 4)

	// The single hop 3 -> 4 is too short for a long edge.
	_, err = s.FullGeometry(hex(0, 0), hex(4, 0))
	assert.ErrorIs(t, err, ErrNoEdge)
}

func TestCompactStopsAtWeightChange(t *testing.T) {
	s := mustBuild(t, testOptions(t),
		Segment{Cells: line(0, 0, 3), Weight: 1},
		Segment{Cells: line(3, 0, 3), Weight: 2},
	)

	require.Equal(t, 2, s.LongEdgeCount())
	out := s.OutEdges(hex(0, 0))
	assert.Equal(t, []Edge{{Target: hex(3, 0), Weight: 3, Long: true}}, out)
	out = s.OutEdges(hex(3, 0))
	assert.Equal(t, []Edge{{Target: hex(6, 0), Weight: 6, Long: true}}, out)
}

func TestCompactStopsAtMerge(t *testing.T) {
	// Two runs join at (3,0); the join has two incoming edges.
	s := mustBuild(t, testOptions(t),
		Segment{Cells: line(0, 0, 6), Weight: 1},
		Segment{Cells: []cellindex.Cell{hex(3, 3), hex(3, 2), hex(3, 1), hex(3, 0)}, Weight: 1},
	)

	for c := range s.Nodes() {
		for _, e := range s.OutEdges(c) {
			if !e.Long {
				continue
			}
			geom, err := s.FullGeometry(c, e.Target)
			require.NoError(t, err)
			for _, interior := range geom[1 : len(geom)-1] {
				assert.NotEqual(t, hex(3, 0), interior, "merge cell inside long edge")
			}
		}
	}
}

func TestCompactCycle(t *testing.T) {
	ring := testGrid.GridDiskDistances(hex(5, 5), 1)[1]
	closed := append(slices.Clone(ring), ring[0])

	s := mustBuild(t, testOptions(t), Segment{Cells: closed, Weight: 1})
	assert.Equal(t, 6, s.EdgeCount())
	assert.Equal(t, 0, s.LongEdgeCount(), "a bare cycle has no chain head")

	// A tail feeding into the cycle makes the entry a branch point.
	tail := []cellindex.Cell{hex(5, 8), hex(5, 7), ring[1]}
	require.True(t, testGrid.AreNeighbors(hex(5, 7), ring[1]))
	s = mustBuild(t, testOptions(t),
		Segment{Cells: closed, Weight: 1},
		Segment{Cells: tail, Weight: 1},
	)
	require.NoError(t, s.Validate())
	for id := range int32(s.LongEdgeCount()) {
		le, err := s.LongEdge(id)
		require.NoError(t, err)
		assert.NotEqual(t, le.Cells[0], le.Cells[len(le.Cells)-1])
	}
}

func TestMinLongEdgeLength(t *testing.T) {
	opts := testOptions(t)
	opts.MinLongEdgeLength = 4

	s := mustBuild(t, opts,
		Segment{Cells: line(0, 0, 3), Weight: 1},
		Segment{Cells: line(0, 2, 4), Weight: 1},
	)
	require.Equal(t, 1, s.LongEdgeCount())
	le, err := s.LongEdge(0)
	require.NoError(t, err)
	assert.Equal(t, line(0, 2, 4), le.Cells)
}
