package graph

import (
	"cmp"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Compact returns a copy of s whose long edges are recomputed from the plain
// adjacency. Existing long edges are ignored, so compacting twice gives the
// same store as compacting once.
func Compact(s *Store, opts BuildOptions) (*Store, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	return compact(s, opts)
}

// reverseCSR is the transpose of the plain adjacency.
type reverseCSR struct {
	firstIn []uint32
	tail    []uint32 // source node of each incoming edge
}

func buildReverse(s *Store) reverseCSR {
	n := s.NumNodes()
	firstIn := make([]uint32, n+1)
	for _, v := range s.Head {
		firstIn[v+1]++
	}
	for i := uint32(1); i <= n; i++ {
		firstIn[i] += firstIn[i-1]
	}
	pos := make([]uint32, n)
	copy(pos, firstIn[:n])
	tail := make([]uint32, len(s.Head))
	for u := range n {
		start, end := s.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := s.Head[e]
			tail[pos[v]] = u
			pos[v]++
		}
	}
	return reverseCSR{firstIn: firstIn, tail: tail}
}

// continuation returns the edge that continues plain edge e = p->c through c.
// That is the case when c has exactly one outgoing edge besides the U-turn to
// p, with the same weight as e, and exactly one incoming edge besides the
// U-turn from that successor.
func continuation(s *Store, rev reverseCSR, p uint32, e uint32) (uint32, bool) {
	c := s.Head[e]
	var next uint32
	outs := 0
	start, end := s.EdgesFrom(c)
	for f := start; f < end; f++ {
		if s.Head[f] == p {
			continue
		}
		outs++
		next = f
	}
	if outs != 1 || s.Weight[next] != s.Weight[e] {
		return 0, false
	}
	succ := s.Head[next]
	ins := 0
	for i := rev.firstIn[c]; i < rev.firstIn[c+1]; i++ {
		if rev.tail[i] == succ {
			continue
		}
		ins++
	}
	if ins != 1 {
		return 0, false
	}
	return next, true
}

// chain is a long edge candidate rooted at plain edge head.
type chain struct {
	head   uint32
	nodes  []uint32
	weight float64
}

func compact(s *Store, opts BuildOptions) (*Store, error) {
	numEdges := uint32(len(s.Head))
	if numEdges == 0 {
		out := *s
		out.LongEdgeOf = make([]int32, 0)
		out.LongFirst = []uint32{0}
		out.LongNodes = nil
		out.LongWeight = nil
		return &out, nil
	}

	rev := buildReverse(s)
	source := edgeSources(s)

	next := make([]int64, numEdges)
	continued := make([]bool, numEdges)
	for e := range numEdges {
		next[e] = -1
		if f, ok := continuation(s, rev, source[e], e); ok {
			next[e] = int64(f)
			continued[f] = true
		}
	}

	// Chains never cross weakly connected components, so each component is
	// an independent unit of work.
	uf := weakComponents(s)
	byRoot := make(map[uint32][]uint32)
	for e := range numEdges {
		if continued[e] || next[e] < 0 {
			continue
		}
		root := uf.Find(source[e])
		byRoot[root] = append(byRoot[root], e)
	}
	roots := make([]uint32, 0, len(byRoot))
	for r := range byRoot {
		roots = append(roots, r)
	}
	slices.Sort(roots)

	results := make([][]chain, len(roots))
	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, root := range roots {
		g.Go(func() error {
			results[i] = followChains(s, source, next, byRoot[root], opts.MinLongEdgeLength)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var chains []chain
	for _, r := range results {
		chains = append(chains, r...)
	}
	slices.SortFunc(chains, func(a, b chain) int {
		return cmp.Compare(a.head, b.head)
	})

	out := *s
	out.LongEdgeOf = make([]int32, numEdges)
	for e := range out.LongEdgeOf {
		out.LongEdgeOf[e] = noLongEdge
	}
	out.LongFirst = make([]uint32, 1, len(chains)+1)
	out.LongNodes = nil
	out.LongWeight = make([]float64, 0, len(chains))
	for id, c := range chains {
		out.LongEdgeOf[c.head] = int32(id)
		out.LongNodes = append(out.LongNodes, c.nodes...)
		out.LongFirst = append(out.LongFirst, uint32(len(out.LongNodes)))
		out.LongWeight = append(out.LongWeight, c.weight)
	}

	opts.Logf("Compaction: %d long edges over %d components", len(chains), len(roots))
	return &out, nil
}

// followChains walks every chain starting at the given head edges until a
// branch, a dead end, a weight change or a cycle.
func followChains(s *Store, source []uint32, next []int64, heads []uint32, minHops int) []chain {
	var chains []chain
	seen := make(map[uint32]struct{})
	for _, h := range heads {
		clear(seen)
		u := source[h]
		nodes := []uint32{u}
		seen[u] = struct{}{}
		weight := 0.0
		for e := int64(h); e >= 0; e = next[e] {
			v := s.Head[e]
			if _, ok := seen[v]; ok {
				break
			}
			seen[v] = struct{}{}
			nodes = append(nodes, v)
			weight += s.Weight[e]
		}
		if len(nodes)-1 >= minHops {
			chains = append(chains, chain{head: h, nodes: nodes, weight: weight})
		}
	}
	return chains
}

// edgeSources returns the source node of every plain edge.
func edgeSources(s *Store) []uint32 {
	source := make([]uint32, len(s.Head))
	for u := range s.NumNodes() {
		start, end := s.EdgesFrom(u)
		for e := start; e < end; e++ {
			source[e] = u
		}
	}
	return source
}
