package graph

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"h3_router/pkg/cellindex"
)

var (
	// ErrNoEdge is returned when no plain or long edge connects two cells.
	ErrNoEdge = errors.New("no such edge")
	// ErrCorruptLongEdge is returned when a recorded long edge does not follow
	// the plain adjacency of the store.
	ErrCorruptLongEdge = errors.New("corrupt long edge")
)

const noLongEdge = int32(-1)

// Store is an immutable routing graph whose nodes are cells.
//
// Nodes are kept sorted by cell value, the position in Cells is the node
// index used by the CSR arrays. Long edges are recorded on the first plain
// edge of their chain; the plain edges of the chain stay in the adjacency so
// every interior cell remains a node.
type Store struct {
	Res      int32            // -1 for an empty store
	Cells    []cellindex.Cell // len: NumNodes; sorted ascending
	FirstOut []uint32         // len: NumNodes + 1
	Head     []uint32         // len: NumEdges; target node of each edge
	Weight   []float64        // len: NumEdges

	// LongEdgeOf[e] is the long edge starting with plain edge e, or -1.
	LongEdgeOf []int32 // len: NumEdges

	// Long edge i visits nodes LongNodes[LongFirst[i]:LongFirst[i+1]],
	// both endpoints included.
	LongFirst  []uint32  // len: NumLongEdges + 1
	LongNodes  []uint32  // flattened node runs
	LongWeight []float64 // len: NumLongEdges
}

// Edge is one entry of the compacted adjacency of a node.
type Edge struct {
	Target cellindex.Cell
	Weight float64
	Long   bool // Target is the far end of a long edge
}

// LongEdge is a run of same-weight plain edges without branches.
type LongEdge struct {
	Cells  []cellindex.Cell
	Weight float64
}

// Stats summarises a store.
type Stats struct {
	Nodes      int
	Edges      int
	LongEdges  int
	Resolution int
}

func emptyStore() *Store {
	return &Store{
		Res:       -1,
		FirstOut:  []uint32{0},
		LongFirst: []uint32{0},
	}
}

// NumNodes returns the number of nodes.
func (s *Store) NumNodes() uint32 { return uint32(len(s.Cells)) }

// NodeCount returns the number of nodes as an int.
func (s *Store) NodeCount() int { return len(s.Cells) }

// EdgeCount returns the number of plain directed edges.
func (s *Store) EdgeCount() int { return len(s.Head) }

// LongEdgeCount returns the number of long edges.
func (s *Store) LongEdgeCount() int { return len(s.LongWeight) }

// Resolution returns the resolution shared by all nodes, -1 when empty.
func (s *Store) Resolution() int { return int(s.Res) }

// Stats summarizes the store.
func (s *Store) Stats() Stats {
	return Stats{
		Nodes:      s.NodeCount(),
		Edges:      s.EdgeCount(),
		LongEdges:  s.LongEdgeCount(),
		Resolution: s.Resolution(),
	}
}

// Nodes yields every node cell in ascending order.
func (s *Store) Nodes() iter.Seq[cellindex.Cell] {
	return func(yield func(cellindex.Cell) bool) {
		for _, c := range s.Cells {
			if !yield(c) {
				return
			}
		}
	}
}

// NodeIndex returns the node index of c.
func (s *Store) NodeIndex(c cellindex.Cell) (uint32, bool) {
	i, ok := slices.BinarySearch(s.Cells, c)
	return uint32(i), ok
}

func (s *Store) HasNode(c cellindex.Cell) bool {
	_, ok := s.NodeIndex(c)
	return ok
}

// EdgesFrom returns the range of edge indices for edges originating from node u.
func (s *Store) EdgesFrom(u uint32) (start, end uint32) {
	return s.FirstOut[u], s.FirstOut[u+1]
}

// LongEdgeEnds returns the first and last node of long edge id.
func (s *Store) LongEdgeEnds(id int32) (first, last uint32) {
	return s.LongNodes[s.LongFirst[id]], s.LongNodes[s.LongFirst[id+1]-1]
}

// LongEdgeInterior returns the node indices strictly between the ends of long edge id.
func (s *Store) LongEdgeInterior(id int32) []uint32 {
	return s.LongNodes[s.LongFirst[id]+1 : s.LongFirst[id+1]-1]
}

// FindEdge returns the plain edge index from u to v.
func (s *Store) FindEdge(u, v uint32) (uint32, bool) {
	start, end := s.EdgesFrom(u)
	for e := start; e < end; e++ {
		if s.Head[e] == v {
			return e, true
		}
	}
	return 0, false
}

// OutEdges returns the compacted adjacency of c. An edge starting a long edge
// is reported as a single hop to the long edge's far end.
func (s *Store) OutEdges(c cellindex.Cell) []Edge {
	u, ok := s.NodeIndex(c)
	if !ok {
		return nil
	}
	start, end := s.EdgesFrom(u)
	out := make([]Edge, 0, end-start)
	for e := start; e < end; e++ {
		if id := s.LongEdgeOf[e]; id != noLongEdge {
			_, last := s.LongEdgeEnds(id)
			out = append(out, Edge{Target: s.Cells[last], Weight: s.LongWeight[id], Long: true})
			continue
		}
		out = append(out, Edge{Target: s.Cells[s.Head[e]], Weight: s.Weight[e]})
	}
	return out
}

// EdgeWeight returns the weight of the plain edge from -> to.
func (s *Store) EdgeWeight(from, to cellindex.Cell) (float64, bool) {
	u, ok := s.NodeIndex(from)
	if !ok {
		return 0, false
	}
	v, ok := s.NodeIndex(to)
	if !ok {
		return 0, false
	}
	e, ok := s.FindEdge(u, v)
	if !ok {
		return 0, false
	}
	return s.Weight[e], true
}

// LongEdge returns long edge id with its cells, after checking that the run
// is still connected in the plain adjacency.
func (s *Store) LongEdge(id int32) (LongEdge, error) {
	if id < 0 || int(id) >= len(s.LongWeight) {
		return LongEdge{}, fmt.Errorf("long edge %d: %w", id, ErrNoEdge)
	}
	nodes := s.LongNodes[s.LongFirst[id]:s.LongFirst[id+1]]
	for i := 0; i+1 < len(nodes); i++ {
		if _, ok := s.FindEdge(nodes[i], nodes[i+1]); !ok {
			invariantViolation("long edge %d: hop %d not in adjacency", id, i)
			return LongEdge{}, fmt.Errorf("long edge %d hop %d: %w", id, i, ErrCorruptLongEdge)
		}
	}
	cells := make([]cellindex.Cell, len(nodes))
	for i, n := range nodes {
		cells[i] = s.Cells[n]
	}
	return LongEdge{Cells: cells, Weight: s.LongWeight[id]}, nil
}

// FullGeometry returns the cells traversed by the edge from -> to: the two
// cells for a plain edge, the whole run for a long edge.
func (s *Store) FullGeometry(from, to cellindex.Cell) ([]cellindex.Cell, error) {
	u, ok := s.NodeIndex(from)
	if !ok {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrNoEdge)
	}
	v, ok := s.NodeIndex(to)
	if !ok {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrNoEdge)
	}
	if _, ok := s.FindEdge(u, v); ok {
		return []cellindex.Cell{from, to}, nil
	}
	start, end := s.EdgesFrom(u)
	for e := start; e < end; e++ {
		id := s.LongEdgeOf[e]
		if id == noLongEdge {
			continue
		}
		if _, last := s.LongEdgeEnds(id); last == v {
			le, err := s.LongEdge(id)
			if err != nil {
				return nil, err
			}
			return le.Cells, nil
		}
	}
	return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrNoEdge)
}

// Validate checks the structural invariants of the store.
func (s *Store) Validate() error {
	n := s.NumNodes()
	if err := validateCSR(s.FirstOut, s.Head, n); err != nil {
		return err
	}
	for i := 1; i < len(s.Cells); i++ {
		if s.Cells[i] <= s.Cells[i-1] {
			return fmt.Errorf("Cells not strictly ascending at %d", i)
		}
	}
	if len(s.Weight) != len(s.Head) {
		return fmt.Errorf("Weight length %d != NumEdges %d", len(s.Weight), len(s.Head))
	}
	for i, w := range s.Weight {
		if !validWeight(w) {
			return fmt.Errorf("Weight[%d]=%v is not a finite non-negative number", i, w)
		}
	}
	if len(s.LongEdgeOf) != len(s.Head) {
		return fmt.Errorf("LongEdgeOf length %d != NumEdges %d", len(s.LongEdgeOf), len(s.Head))
	}

	numLong := uint32(len(s.LongWeight))
	if uint32(len(s.LongFirst)) != numLong+1 {
		return fmt.Errorf("LongFirst length %d != NumLongEdges+1 %d", len(s.LongFirst), numLong+1)
	}
	if s.LongFirst[0] != 0 || s.LongFirst[numLong] != uint32(len(s.LongNodes)) {
		return fmt.Errorf("LongFirst does not span LongNodes")
	}
	for i := uint32(0); i < numLong; i++ {
		if s.LongFirst[i+1] < s.LongFirst[i]+3 {
			return fmt.Errorf("long edge %d has fewer than 2 hops", i)
		}
	}
	for _, v := range s.LongNodes {
		if v >= n {
			return fmt.Errorf("long edge node %d >= NumNodes=%d", v, n)
		}
	}

	owners := make([]int, numLong)
	for u := uint32(0); u < n; u++ {
		start, end := s.EdgesFrom(u)
		for e := start; e < end; e++ {
			id := s.LongEdgeOf[e]
			if id == noLongEdge {
				continue
			}
			if id < 0 || uint32(id) >= numLong {
				return fmt.Errorf("LongEdgeOf[%d]=%d out of range", e, id)
			}
			owners[id]++
			nodes := s.LongNodes[s.LongFirst[id]:s.LongFirst[id+1]]
			if nodes[0] != u || nodes[1] != s.Head[e] {
				return fmt.Errorf("long edge %d does not start with edge %d: %w", id, e, ErrCorruptLongEdge)
			}
			if err := s.checkLongEdge(id, s.Weight[e]); err != nil {
				return err
			}
		}
	}
	for id, c := range owners {
		if c != 1 {
			return fmt.Errorf("long edge %d referenced by %d edges", id, c)
		}
	}
	return nil
}

func (s *Store) checkLongEdge(id int32, hopWeight float64) error {
	nodes := s.LongNodes[s.LongFirst[id]:s.LongFirst[id+1]]
	var total float64
	for i := 0; i+1 < len(nodes); i++ {
		e, ok := s.FindEdge(nodes[i], nodes[i+1])
		if !ok {
			return fmt.Errorf("long edge %d hop %d: %w", id, i, ErrCorruptLongEdge)
		}
		if s.Weight[e] != hopWeight {
			return fmt.Errorf("long edge %d hop %d weight %v != %v: %w", id, i, s.Weight[e], hopWeight, ErrCorruptLongEdge)
		}
		total += s.Weight[e]
	}
	if math.Abs(total-s.LongWeight[id]) > 1e-9*math.Max(1, total) {
		return fmt.Errorf("long edge %d weight %v != sum %v: %w", id, s.LongWeight[id], total, ErrCorruptLongEdge)
	}
	return nil
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w >= 0
}
