package routing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/graph"
)

// ErrPointTooFar is returned when no graph node lies within the search radius.
var ErrPointTooFar = errors.New("point too far from graph")

// ErrInvalidRadius is returned for negative search radii.
var ErrInvalidRadius = errors.New("invalid search radius")

// NearestNode is the outcome of resolving a query cell to a graph node.
type NearestNode struct {
	Query          cellindex.Cell
	Node           cellindex.Cell
	K              int     // grid distance between Query and Node
	DistanceMeters float64 // centroid distance between Query and Node
	Found          bool
}

// Resolver bridges gaps between arbitrary cells and the nodes of a graph by
// searching k-rings of increasing radius.
type Resolver struct {
	store *graph.Store
	idx   cellindex.Index
}

// NewResolver creates a resolver over store, whose cells belong to idx.
func NewResolver(store *graph.Store, idx cellindex.Index) *Resolver {
	return &Resolver{store: store, idx: idx}
}

func (r *Resolver) check(c cellindex.Cell, maxK int) error {
	if maxK < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRadius, maxK)
	}
	if !r.idx.IsValid(c) {
		return fmt.Errorf("%w: %s", ErrInvalidCell, c)
	}
	if res := r.store.Resolution(); res >= 0 && r.idx.Resolution(c) != res {
		return fmt.Errorf("%w: cell %s at resolution %d, graph at %d",
			graph.ErrResolutionMismatch, c, r.idx.Resolution(c), res)
	}
	return nil
}

// nearestRing returns the graph nodes of the first non-empty ring around c,
// sorted by cell value, and that ring's radius.
func (r *Resolver) nearestRing(c cellindex.Cell, maxK int) ([]cellindex.Cell, int) {
	if r.store.HasNode(c) {
		return []cellindex.Cell{c}, 0
	}
	if maxK == 0 || r.store.NodeCount() == 0 {
		return nil, -1
	}
	for k, ring := range r.idx.GridDiskDistances(c, maxK) {
		var found []cellindex.Cell
		for _, rc := range ring {
			if r.store.HasNode(rc) {
				found = append(found, rc)
			}
		}
		if len(found) > 0 {
			slices.Sort(found)
			return slices.Compact(found), k
		}
	}
	return nil, -1
}

func (r *Resolver) result(query, node cellindex.Cell, k int) NearestNode {
	return NearestNode{
		Query:          query,
		Node:           node,
		K:              k,
		DistanceMeters: r.idx.DistanceMeters(query, node),
		Found:          true,
	}
}

// Nearest returns the graph node closest to c in grid steps, searching at
// most maxK rings. Among several nodes at the same distance the one with the
// smallest cell value wins. Found is false when no node is within maxK.
func (r *Resolver) Nearest(c cellindex.Cell, maxK int) (NearestNode, error) {
	if err := r.check(c, maxK); err != nil {
		return NearestNode{}, err
	}
	nodes, k := r.nearestRing(c, maxK)
	if len(nodes) == 0 {
		return NearestNode{Query: c}, nil
	}
	return r.result(c, nodes[0], k), nil
}

// NearestAll returns every graph node at the minimal distance from c,
// sorted by cell value.
func (r *Resolver) NearestAll(c cellindex.Cell, maxK int) ([]NearestNode, error) {
	if err := r.check(c, maxK); err != nil {
		return nil, err
	}
	nodes, k := r.nearestRing(c, maxK)
	out := make([]NearestNode, len(nodes))
	for i, n := range nodes {
		out[i] = r.result(c, n, k)
	}
	return out, nil
}

// NearestMany resolves every cell on up to workers goroutines. The result
// has one entry per input, in input order.
func (r *Resolver) NearestMany(ctx context.Context, cells []cellindex.Cell, maxK, workers int) ([]NearestNode, error) {
	if maxK < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRadius, maxK)
	}
	if workers < 1 {
		workers = 1
	}
	out := make([]NearestNode, len(cells))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range cells {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := r.Nearest(c, maxK)
			if err != nil {
				return fmt.Errorf("cell %d: %w", i, err)
			}
			out[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
