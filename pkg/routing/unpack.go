package routing

import (
	"fmt"
	"slices"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/graph"
)

const noNode = ^uint32(0) // sentinel for "no node"

const noLongEdge = int32(-1)

// hop is one step of a settled search tree: the node reached and the long
// edge taken to reach it, if any.
type hop struct {
	node uint32
	long int32
}

// tracePredecessors walks the predecessor chain from dest back to origin and
// returns the hops in travel order.
func tracePredecessors(qs *QueryState, origin, dest uint32) []hop {
	var hops []hop
	for v := dest; v != origin; v = qs.Pred[v] {
		hops = append(hops, hop{node: v, long: qs.PredLong[v]})
	}
	slices.Reverse(hops)
	return hops
}

// unpackPath expands a hop sequence into the full cell sequence, replacing
// every long edge by the cells it spans.
func unpackPath(s *graph.Store, origin uint32, hops []hop) ([]cellindex.Cell, error) {
	cells := make([]cellindex.Cell, 0, len(hops)+1)
	cells = append(cells, s.Cells[origin])
	for _, h := range hops {
		if h.long == noLongEdge {
			cells = append(cells, s.Cells[h.node])
			continue
		}
		le, err := s.LongEdge(h.long)
		if err != nil {
			return nil, err
		}
		if le.Cells[0] != cells[len(cells)-1] || le.Cells[len(le.Cells)-1] != s.Cells[h.node] {
			return nil, fmt.Errorf("long edge %d does not join %s and %s: %w",
				h.long, cells[len(cells)-1], s.Cells[h.node], graph.ErrCorruptLongEdge)
		}
		cells = append(cells, le.Cells[1:]...)
	}
	return cells, nil
}
