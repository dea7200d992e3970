package routing

import (
	"context"
	"fmt"

	"h3_router/pkg/cellindex"
)

// DefaultMaxGap is the default number of k-rings searched when bridging a
// query cell to the graph.
const DefaultMaxGap = 3

// LatLng represents a geographic coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// RouteResult is the output of a route query.
type RouteResult struct {
	Path            Path
	OriginSnap      NearestNode
	DestinationSnap NearestNode
}

// Router answers route queries between arbitrary cells by bridging both ends
// to the graph before searching.
type Router struct {
	Engine   *Engine
	Resolver *Resolver
	MaxGap   int
}

// NewRouter wires an engine and a resolver over the same store.
func NewRouter(e *Engine, maxGap int) *Router {
	return &Router{
		Engine:   e,
		Resolver: NewResolver(e.Store(), e.Index()),
		MaxGap:   maxGap,
	}
}

// Index returns the cell index of the underlying graph.
func (r *Router) Index() cellindex.Index { return r.Engine.Index() }

func (r *Router) snap(c cellindex.Cell, which string) (NearestNode, error) {
	n, err := r.Resolver.Nearest(c, r.MaxGap)
	if err != nil {
		return NearestNode{}, fmt.Errorf("%s: %w", which, err)
	}
	if !n.Found {
		return NearestNode{}, fmt.Errorf("%s %s: %w", which, c, ErrPointTooFar)
	}
	return n, nil
}

// Route bridges origin and destination to their nearest graph nodes and
// returns the shortest path between those nodes.
func (r *Router) Route(ctx context.Context, origin, destination cellindex.Cell) (*RouteResult, error) {
	from, err := r.snap(origin, "origin")
	if err != nil {
		return nil, err
	}
	to, err := r.snap(destination, "destination")
	if err != nil {
		return nil, err
	}
	p, err := r.Engine.ShortestPath(ctx, from.Node, to.Node)
	if err != nil {
		return nil, err
	}
	return &RouteResult{Path: p, OriginSnap: from, DestinationSnap: to}, nil
}

// CellAt converts a coordinate to a cell at the graph resolution.
func (r *Router) CellAt(p LatLng) (cellindex.Cell, error) {
	res := r.Engine.Store().Resolution()
	if res < 0 {
		return 0, fmt.Errorf("%w: graph is empty", ErrPointTooFar)
	}
	return r.Index().CellAt(p.Lat, p.Lng, res)
}

// RouteLatLng is Route for geographic coordinates.
func (r *Router) RouteLatLng(ctx context.Context, start, end LatLng) (*RouteResult, error) {
	origin, err := r.CellAt(start)
	if err != nil {
		return nil, err
	}
	destination, err := r.CellAt(end)
	if err != nil {
		return nil, err
	}
	return r.Route(ctx, origin, destination)
}

// Reachable bridges origin to the graph and returns every cell within
// threshold of the bridged node.
func (r *Router) Reachable(ctx context.Context, origin LatLng, threshold float64) (map[cellindex.Cell]float64, NearestNode, error) {
	c, err := r.CellAt(origin)
	if err != nil {
		return nil, NearestNode{}, err
	}
	n, err := r.snap(c, "origin")
	if err != nil {
		return nil, NearestNode{}, err
	}
	cells, err := r.Engine.WithinWeightThreshold(ctx, n.Node, threshold)
	if err != nil {
		return nil, NearestNode{}, err
	}
	return cells, n, nil
}
