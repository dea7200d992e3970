package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/graph"
)

var (
	// ErrNoPath is returned when the destination cannot be reached. It is an
	// answer, not a failure of the engine.
	ErrNoPath = errors.New("no path found")
	// ErrInvalidCell is returned for cells the index does not recognise.
	ErrInvalidCell = errors.New("invalid cell")
	// ErrInvalidThreshold is returned for NaN or negative weight thresholds.
	ErrInvalidThreshold = errors.New("invalid weight threshold")
	// ErrInvalidOptions is returned for unusable ShortestPathOptions.
	ErrInvalidOptions = errors.New("invalid shortest path options")
)

// ctxCheckInterval is the number of heap pops between context checks.
const ctxCheckInterval = 100

// Engine runs shortest-path searches over an immutable store.
// It is safe for concurrent use.
type Engine struct {
	store *graph.Store
	idx   cellindex.Index
	pool  sync.Pool
}

// NewEngine creates a routing engine over store, whose cells belong to idx.
func NewEngine(store *graph.Store, idx cellindex.Index) *Engine {
	e := &Engine{store: store, idx: idx}
	e.pool.New = func() any { return NewQueryState(store.NumNodes()) }
	return e
}

// Store returns the graph the engine searches.
func (e *Engine) Store() *graph.Store { return e.store }

// Index returns the cell index of the graph.
func (e *Engine) Index() cellindex.Index { return e.idx }

func (e *Engine) acquire() *QueryState {
	return e.pool.Get().(*QueryState)
}

func (e *Engine) release(qs *QueryState) {
	qs.Reset()
	e.pool.Put(qs)
}

// checkCell rejects invalid cells and cells at another resolution than the graph.
func (e *Engine) checkCell(c cellindex.Cell) error {
	if !e.idx.IsValid(c) {
		return fmt.Errorf("%w: %s", ErrInvalidCell, c)
	}
	if res := e.store.Resolution(); res >= 0 && e.idx.Resolution(c) != res {
		return fmt.Errorf("%w: cell %s at resolution %d, graph at %d",
			graph.ErrResolutionMismatch, c, e.idx.Resolution(c), res)
	}
	return nil
}

// query bounds one search.
type query struct {
	targets map[uint32]struct{}
	want    int // settled targets that end the search, 0 for all of them
	blocked map[uint32]struct{}
	limit   float64
	useLong bool
}

// longUsable reports whether long edge id may be taken as one hop: no target
// or blocked node on its interior and an unblocked far end.
func (q *query) longUsable(s *graph.Store, id int32) bool {
	interior := s.LongEdgeInterior(id)
	if anyIn(interior, q.targets) || anyIn(interior, q.blocked) {
		return false
	}
	_, end := s.LongEdgeEnds(id)
	_, blocked := q.blocked[end]
	return !blocked
}

// search is a label-setting Dijkstra from origin. It stops once the wanted
// number of targets is settled or the frontier is empty, and never labels a
// node beyond the limit or a blocked node.
func (e *Engine) search(ctx context.Context, qs *QueryState, origin uint32, q query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := e.store

	qs.touch(origin, 0, noNode, noLongEdge)
	qs.PQ.Push(origin, 0)
	remaining := len(q.targets)
	if q.want > 0 {
		remaining = min(remaining, q.want)
	}

	iterations := 0
	for qs.PQ.Len() > 0 {
		iterations++
		if iterations%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		item := qs.PQ.Pop()
		u := item.Node
		d := item.Dist
		if qs.Settled[u] || d > qs.Dist[u] {
			continue // stale entry
		}
		qs.Settled[u] = true

		if _, ok := q.targets[u]; ok {
			remaining--
			if remaining == 0 {
				return nil
			}
		}

		start, end := s.EdgesFrom(u)
		for ei := start; ei < end; ei++ {
			v := s.Head[ei]
			if _, ok := q.blocked[v]; ok {
				continue
			}
			w := s.Weight[ei]
			long := noLongEdge
			if q.useLong {
				if id := s.LongEdgeOf[ei]; id != noLongEdge && q.longUsable(s, id) {
					_, v = s.LongEdgeEnds(id)
					w = s.LongWeight[id]
					long = id
				}
			}
			newDist := d + w
			if newDist > q.limit || qs.Settled[v] || newDist >= qs.Dist[v] {
				continue
			}
			qs.touch(v, newDist, u, long)
			qs.PQ.Push(v, newDist)
		}
	}
	return nil
}

func anyIn(nodes []uint32, set map[uint32]struct{}) bool {
	if len(set) == 0 {
		return false
	}
	for _, n := range nodes {
		if _, ok := set[n]; ok {
			return true
		}
	}
	return false
}

// blockedNodes maps excluded cells to node indices. Cells that are not nodes
// are dropped.
func (e *Engine) blockedNodes(exclude []cellindex.Cell) map[uint32]struct{} {
	if len(exclude) == 0 {
		return nil
	}
	out := make(map[uint32]struct{}, len(exclude))
	for _, c := range exclude {
		if n, ok := e.store.NodeIndex(c); ok {
			out[n] = struct{}{}
		}
	}
	return out
}

func (e *Engine) pathTo(qs *QueryState, origin, dest uint32) (Path, error) {
	cells, err := unpackPath(e.store, origin, tracePredecessors(qs, origin, dest))
	if err != nil {
		return Path{}, err
	}
	return Path{
		Kind:        EdgeSequence,
		Origin:      e.store.Cells[origin],
		Destination: e.store.Cells[dest],
		Cells:       cells,
		Weight:      qs.Dist[dest],
	}, nil
}

// ShortestPath returns the minimum-weight path from origin to destination.
// A valid origin equal to destination yields an OriginIsDestination path
// without searching, whether or not the cell is in the graph.
func (e *Engine) ShortestPath(ctx context.Context, origin, destination cellindex.Cell) (Path, error) {
	if !e.idx.IsValid(origin) {
		return Path{}, fmt.Errorf("%w: %s", ErrInvalidCell, origin)
	}
	if origin == destination {
		return originIsDestination(origin), nil
	}
	if err := e.checkCell(origin); err != nil {
		return Path{}, err
	}
	if err := e.checkCell(destination); err != nil {
		return Path{}, err
	}

	o, ok := e.store.NodeIndex(origin)
	if !ok {
		return Path{}, fmt.Errorf("%w: origin %s is not a graph node", ErrNoPath, origin)
	}
	d, ok := e.store.NodeIndex(destination)
	if !ok {
		return Path{}, fmt.Errorf("%w: destination %s is not a graph node", ErrNoPath, destination)
	}

	qs := e.acquire()
	defer e.release(qs)

	q := query{targets: map[uint32]struct{}{d: {}}, limit: math.Inf(1), useLong: true}
	if err := e.search(ctx, qs, o, q); err != nil {
		return Path{}, err
	}
	if !qs.Settled[d] {
		return Path{}, ErrNoPath
	}
	return e.pathTo(qs, o, d)
}

// ShortestPathOptions tunes ShortestPathMany and the searches built on it.
// The zero value settles every destination over the full graph.
type ShortestPathOptions struct {
	// MaxDestinations ends the search once this many destinations are
	// reached, nearest first. A destination equal to the origin counts.
	// Zero means all of them.
	MaxDestinations int
	// Exclude hides cells from the graph for the search. An excluded origin
	// reaches nothing; excluded destinations are unreachable.
	Exclude []cellindex.Cell
}

// ShortestPathMany runs one search from origin until the requested
// destinations are settled. Unreachable destinations are absent from the
// result, and so are invalid ones or ones at another resolution than the
// graph. A destination equal to a valid origin maps to OriginIsDestination
// before any resolution check.
func (e *Engine) ShortestPathMany(ctx context.Context, origin cellindex.Cell, destinations []cellindex.Cell, opts ShortestPathOptions) (map[cellindex.Cell]Path, error) {
	if !e.idx.IsValid(origin) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCell, origin)
	}
	if opts.MaxDestinations < 0 {
		return nil, fmt.Errorf("%w: max destinations %d", ErrInvalidOptions, opts.MaxDestinations)
	}
	paths := make(map[cellindex.Cell]Path)
	if slices.Contains(opts.Exclude, origin) {
		return paths, nil
	}

	blocked := e.blockedNodes(opts.Exclude)
	targets := make(map[uint32]struct{}, len(destinations))
	others := false
	for _, d := range destinations {
		if d == origin {
			paths[d] = originIsDestination(d)
			continue
		}
		others = true
		if e.checkCell(d) != nil {
			continue
		}
		if n, ok := e.store.NodeIndex(d); ok {
			if _, excluded := blocked[n]; !excluded {
				targets[n] = struct{}{}
			}
		}
	}
	if !others {
		return paths, nil
	}
	if err := e.checkCell(origin); err != nil {
		return nil, err
	}

	want := 0
	if opts.MaxDestinations > 0 {
		want = opts.MaxDestinations - len(paths)
		if want <= 0 {
			return paths, nil
		}
	}
	o, ok := e.store.NodeIndex(origin)
	if !ok || len(targets) == 0 {
		return paths, nil
	}

	qs := e.acquire()
	defer e.release(qs)

	q := query{targets: targets, want: want, blocked: blocked, limit: math.Inf(1), useLong: true}
	if err := e.search(ctx, qs, o, q); err != nil {
		return nil, err
	}
	for n := range targets {
		if !qs.Settled[n] {
			continue
		}
		p, err := e.pathTo(qs, o, n)
		if err != nil {
			return nil, err
		}
		paths[p.Destination] = p
	}
	return paths, nil
}

// ShortestPathManyToMany runs ShortestPathMany for every origin on up to
// workers goroutines. Each origin maps to its found paths in ComparePaths order.
func (e *Engine) ShortestPathManyToMany(ctx context.Context, origins, destinations []cellindex.Cell, opts ShortestPathOptions, workers int) (map[cellindex.Cell][]Path, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([][]Path, len(origins))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, origin := range origins {
		g.Go(func() error {
			found, err := e.ShortestPathMany(gctx, origin, destinations, opts)
			if err != nil {
				return fmt.Errorf("origin %s: %w", origin, err)
			}
			paths := make([]Path, 0, len(found))
			for _, p := range found {
				paths = append(paths, p)
			}
			SortPaths(paths)
			results[i] = paths
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[cellindex.Cell][]Path, len(origins))
	for i, origin := range origins {
		out[origin] = results[i]
	}
	return out, nil
}

// DifferentialPaths are the paths of one origin over the full graph and
// with the excluded cells hidden.
type DifferentialPaths struct {
	Origin  cellindex.Cell
	Without []Path
	With    []Path
}

// DifferentialShortestPath routes every origin twice: once over the full
// graph and once with opts.Exclude hidden. Origins inside the exclusion are
// dropped. The result is ordered by origin cell, one entry per distinct origin.
func (e *Engine) DifferentialShortestPath(ctx context.Context, origins, destinations []cellindex.Cell, opts ShortestPathOptions, workers int) ([]DifferentialPaths, error) {
	if len(opts.Exclude) == 0 {
		return nil, fmt.Errorf("%w: no cells to exclude", ErrInvalidOptions)
	}
	kept := make([]cellindex.Cell, 0, len(origins))
	for _, o := range origins {
		if !slices.Contains(opts.Exclude, o) {
			kept = append(kept, o)
		}
	}
	slices.Sort(kept)
	kept = slices.Compact(kept)

	full := opts
	full.Exclude = nil
	without, err := e.ShortestPathManyToMany(ctx, kept, destinations, full, workers)
	if err != nil {
		return nil, err
	}
	with, err := e.ShortestPathManyToMany(ctx, kept, destinations, opts, workers)
	if err != nil {
		return nil, err
	}

	out := make([]DifferentialPaths, 0, len(kept))
	for _, o := range kept {
		out = append(out, DifferentialPaths{Origin: o, Without: without[o], With: with[o]})
	}
	return out, nil
}

// WithinWeightThreshold returns every cell reachable from origin with a total
// weight of at most threshold, together with that weight. The origin itself
// is included with weight 0 when it is a graph node.
func (e *Engine) WithinWeightThreshold(ctx context.Context, origin cellindex.Cell, threshold float64) (map[cellindex.Cell]float64, error) {
	if math.IsNaN(threshold) || threshold < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if err := e.checkCell(origin); err != nil {
		return nil, err
	}
	o, ok := e.store.NodeIndex(origin)
	if !ok {
		return map[cellindex.Cell]float64{}, nil
	}

	qs := e.acquire()
	defer e.release(qs)

	if err := e.search(ctx, qs, o, query{limit: threshold}); err != nil {
		return nil, err
	}
	out := make(map[cellindex.Cell]float64, len(qs.Touched))
	for _, n := range qs.Touched {
		if qs.Settled[n] {
			out[e.store.Cells[n]] = qs.Dist[n]
		}
	}
	return out, nil
}

// WithinWeightThresholdMany merges WithinWeightThreshold over several origins.
// A cell reached from more than one origin gets agg(existing, incoming), with
// origins folded in input order.
func (e *Engine) WithinWeightThresholdMany(ctx context.Context, origins []cellindex.Cell, threshold float64, agg func(existing, incoming float64) float64, workers int) (map[cellindex.Cell]float64, error) {
	if agg == nil {
		agg = math.Min
	}
	if workers < 1 {
		workers = 1
	}
	results := make([]map[cellindex.Cell]float64, len(origins))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, origin := range origins {
		g.Go(func() error {
			r, err := e.WithinWeightThreshold(gctx, origin, threshold)
			if err != nil {
				return fmt.Errorf("origin %s: %w", origin, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[cellindex.Cell]float64)
	for _, r := range results {
		for c, w := range r {
			if existing, ok := out[c]; ok {
				out[c] = agg(existing, w)
			} else {
				out[c] = w
			}
		}
	}
	return out, nil
}
