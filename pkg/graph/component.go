package graph

import "h3_router/pkg/cellindex"

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Size returns the number of elements in the set containing x.
func (uf *UnionFind) Size(x uint32) uint32 {
	return uf.size[uf.Find(x)]
}

// weakComponents unions every edge of s, ignoring direction.
func weakComponents(s *Store) *UnionFind {
	uf := NewUnionFind(s.NumNodes())
	for u := range s.NumNodes() {
		start, end := s.EdgesFrom(u)
		for e := start; e < end; e++ {
			uf.Union(u, s.Head[e])
		}
	}
	return uf
}

// LargestComponent returns the node indices belonging to the largest
// weakly connected component (treating the directed graph as undirected).
// Ties go to the component containing the smallest cell.
func LargestComponent(s *Store) []uint32 {
	if s.NumNodes() == 0 {
		return nil
	}

	uf := weakComponents(s)

	bestRoot := uint32(0)
	bestSize := uint32(0)
	for i := range s.NumNodes() {
		root := uf.Find(i)
		if uf.size[root] > bestSize {
			bestRoot = root
			bestSize = uf.size[root]
		}
	}

	nodes := make([]uint32, 0, bestSize)
	for i := range s.NumNodes() {
		if uf.Find(i) == bestRoot {
			nodes = append(nodes, i)
		}
	}
	return nodes
}

// FilterToComponent creates a new store containing only the specified nodes,
// which must be ascending and closed under weak connectivity (as returned by
// LargestComponent). Long edges starting inside the component are kept.
func FilterToComponent(s *Store, nodes []uint32) *Store {
	if len(nodes) == 0 {
		return emptyStore()
	}

	oldToNew := make(map[uint32]uint32, len(nodes))
	for newIdx, oldIdx := range nodes {
		oldToNew[oldIdx] = uint32(newIdx)
	}

	numNodes := uint32(len(nodes))
	out := &Store{
		Res:       s.Res,
		Cells:     make([]cellindex.Cell, 0, numNodes),
		FirstOut:  make([]uint32, numNodes+1),
		LongFirst: []uint32{0},
	}
	for _, oldU := range nodes {
		out.Cells = append(out.Cells, s.Cells[oldU])
	}

	for newU, oldU := range nodes {
		start, end := s.EdgesFrom(oldU)
		for e := start; e < end; e++ {
			newV, ok := oldToNew[s.Head[e]]
			if !ok {
				continue
			}
			out.Head = append(out.Head, newV)
			out.Weight = append(out.Weight, s.Weight[e])
			id := s.LongEdgeOf[e]
			if id == noLongEdge {
				out.LongEdgeOf = append(out.LongEdgeOf, noLongEdge)
				continue
			}
			out.LongEdgeOf = append(out.LongEdgeOf, int32(len(out.LongWeight)))
			for _, n := range s.LongNodes[s.LongFirst[id]:s.LongFirst[id+1]] {
				out.LongNodes = append(out.LongNodes, oldToNew[n])
			}
			out.LongFirst = append(out.LongFirst, uint32(len(out.LongNodes)))
			out.LongWeight = append(out.LongWeight, s.LongWeight[id])
		}
		out.FirstOut[newU+1] = uint32(len(out.Head))
	}
	if out.LongEdgeOf == nil {
		out.LongEdgeOf = []int32{}
	}
	return out
}
