package routing

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/graph"
)

const testRes = 9

var testGrid = cellindex.NewHexGrid(0.01)

func hex(q, r int) cellindex.Cell {
	return testGrid.Encode(q, r, testRes)
}

// line returns n+1 cells walking east from (q, r).
func line(q, r, n int) []cellindex.Cell {
	cells := make([]cellindex.Cell, n+1)
	for i := range cells {
		cells[i] = hex(q+i, r)
	}
	return cells
}

func buildStore(t testing.TB, segs ...graph.Segment) *graph.Store {
	t.Helper()
	opts := graph.DefaultBuildOptions()
	opts.Conflicts = graph.ConflictKeepMinimum
	opts.Logf = t.Logf
	s, err := graph.Build(testGrid, slices.Values(segs), opts)
	require.NoError(t, err)
	return s
}

// randomSegments produces a deterministic tangle of short walks with integer
// weights, so sums stay exact.
func randomSegments(seed uint64, n int) []graph.Segment {
	rng := rand.New(rand.NewPCG(seed, seed*31+7))
	segs := make([]graph.Segment, 0, n)
	for range n {
		q, r := rng.IntN(10), rng.IntN(10)
		cells := []cellindex.Cell{hex(q, r)}
		for range 1 + rng.IntN(10) {
			d := cellindex.HexDirections[rng.IntN(6)]
			q, r = q+d[0], r+d[1]
			next := hex(q, r)
			if slices.Contains(cells, next) {
				break
			}
			cells = append(cells, next)
		}
		segs = append(segs, graph.Segment{
			Cells:         cells,
			Weight:        float64(1 + rng.IntN(3)),
			Bidirectional: rng.IntN(2) == 0,
		})
	}
	return segs
}

// plainDijkstra runs a textbook Dijkstra over the plain edges only.
func plainDijkstra(s *graph.Store, source, target uint32) float64 {
	dist := make([]float64, s.NumNodes())
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	dist[source] = 0

	type item struct {
		node uint32
		dist float64
	}
	pq := []item{{source, 0}}

	for len(pq) > 0 {
		minIdx := 0
		for i := 1; i < len(pq); i++ {
			if pq[i].dist < pq[minIdx].dist {
				minIdx = i
			}
		}
		cur := pq[minIdx]
		pq[minIdx] = pq[len(pq)-1]
		pq = pq[:len(pq)-1]

		if cur.dist > dist[cur.node] {
			continue
		}

		start, end := s.EdgesFrom(cur.node)
		for e := start; e < end; e++ {
			v := s.Head[e]
			newDist := cur.dist + s.Weight[e]
			if newDist < dist[v] {
				dist[v] = newDist
				pq = append(pq, item{v, newDist})
			}
		}
	}

	return dist[target]
}

// requireValidPath checks that every hop of p is a plain edge and that the
// hop weights add up to p.Weight.
func requireValidPath(t *testing.T, s *graph.Store, p Path) {
	t.Helper()
	require.NotEmpty(t, p.Cells)
	require.Equal(t, p.Origin, p.Cells[0])
	require.Equal(t, p.Destination, p.Cells[len(p.Cells)-1])
	var total float64
	for i := 0; i+1 < len(p.Cells); i++ {
		w, ok := s.EdgeWeight(p.Cells[i], p.Cells[i+1])
		require.True(t, ok, "hop %d %s -> %s is not an edge", i, p.Cells[i], p.Cells[i+1])
		total += w
	}
	require.Equal(t, p.Weight, total)
}

func TestDijkstraCorrectness(t *testing.T) {
	for seed := range uint64(10) {
		s := buildStore(t, randomSegments(seed, 30)...)
		eng := NewEngine(s, testGrid)
		ctx := context.Background()

		for src := range s.NumNodes() {
			for dst := range s.NumNodes() {
				if src == dst {
					continue
				}
				expected := plainDijkstra(s, src, dst)
				p, err := eng.ShortestPath(ctx, s.Cells[src], s.Cells[dst])
				if math.IsInf(expected, 1) {
					require.ErrorIs(t, err, ErrNoPath, "seed=%d s=%d d=%d", seed, src, dst)
					continue
				}
				require.NoError(t, err, "seed=%d s=%d d=%d", seed, src, dst)
				require.Equal(t, expected, p.Weight, "seed=%d s=%d d=%d", seed, src, dst)
				requireValidPath(t, s, p)
			}
		}
	}
}

func TestMinHeap(t *testing.T) {
	var h MinHeap

	h.Push(1, 30)
	h.Push(2, 10)
	h.Push(3, 20)

	for _, want := range []PQItem{{Node: 2, Dist: 10, Seq: 1}, {Node: 3, Dist: 20, Seq: 2}, {Node: 1, Dist: 30, Seq: 0}} {
		if got := h.Pop(); got != want {
			t.Errorf("Pop = %+v, want %+v", got, want)
		}
	}

	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
}

func TestMinHeapTiesPopInPushOrder(t *testing.T) {
	var h MinHeap
	for node := range uint32(20) {
		h.Push(node, 5)
	}
	for want := range uint32(20) {
		if got := h.Pop().Node; got != want {
			t.Fatalf("Pop = %d, want %d", got, want)
		}
	}
}

func TestQueryStateReset(t *testing.T) {
	qs := NewQueryState(4)
	qs.touch(2, 1.5, 0, 3)
	qs.Settled[2] = true
	qs.PQ.Push(2, 1.5)

	qs.Reset()

	if !math.IsInf(qs.Dist[2], 1) || qs.Pred[2] != noNode || qs.PredLong[2] != noLongEdge || qs.Settled[2] {
		t.Errorf("node 2 not reset: dist=%v pred=%d long=%d settled=%v",
			qs.Dist[2], qs.Pred[2], qs.PredLong[2], qs.Settled[2])
	}
	if len(qs.Touched) != 0 || qs.PQ.Len() != 0 {
		t.Errorf("Touched=%d PQ=%d, want both empty", len(qs.Touched), qs.PQ.Len())
	}
}

func BenchmarkShortestPath(b *testing.B) {
	var segs []graph.Segment
	for r := range 40 {
		segs = append(segs, graph.Segment{Cells: line(0, r, 60), Weight: 1, Bidirectional: true})
	}
	for q := 0; q <= 60; q += 10 {
		col := make([]cellindex.Cell, 40)
		for r := range col {
			col[r] = hex(q, r)
		}
		segs = append(segs, graph.Segment{Cells: col, Weight: 2, Bidirectional: true})
	}
	s := buildStore(b, segs...)
	eng := NewEngine(s, testGrid)

	ctx := context.Background()
	start, end := hex(0, 0), hex(60, 39)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.ShortestPath(ctx, start, end)
	}
}
