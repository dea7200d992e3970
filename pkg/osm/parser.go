package osm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/geo"
	"h3_router/pkg/graph"
)

// ErrNoNeighbors is returned when the index reports no neighbours for a
// cell, which makes it impossible to size the sampling step.
var ErrNoNeighbors = errors.New("cell has no neighbours")

// DefaultHighwayWeights maps highway tag values to the weight of one cell hop.
var DefaultHighwayWeights = map[string]float64{
	"motorway":       3,
	"motorway_link":  3,
	"trunk":          3,
	"trunk_link":     3,
	"primary":        3,
	"primary_link":   3,
	"secondary":      4,
	"secondary_link": 4,
	"tertiary":       5,
	"tertiary_link":  5,
	"unclassified":   8,
	"residential":    8,
	"living_street":  8,
	"service":        8,
	"road":           9,
	"pedestrian":     50,
}

// wayWeight returns the hop weight for a routable way.
func wayWeight(tags osm.Tags, weights map[string]float64) (float64, bool) {
	w, ok := weights[tags.Find("highway")]
	if !ok {
		return 0, false
	}

	// Skip area highways (plazas).
	if tags.Find("area") == "yes" {
		return 0, false
	}

	access := tags.Find("access")
	if access == "no" || access == "private" {
		return 0, false
	}
	return w, true
}

// directionFlags returns (forward, backward) based on highway type and oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	forward = true
	backward = true

	hw := tags.Find("highway")

	// Implied oneway for motorways and roundabouts.
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent, skip entirely.
		forward = false
		backward = false
	}

	return forward, backward
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	NodeIDs  []osm.NodeID
	Weight   float64
	Forward  bool
	Backward bool
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	Resolution int
	// BBox, if non-empty, drops way sections with an endpoint outside it.
	BBox    orb.Bound
	Weights map[string]float64 // nil means DefaultHighwayWeights
}

// ParseResult holds the segments traced from an OSM PBF file.
type ParseResult struct {
	Segments     []graph.Segment
	Ways         int
	MissingNodes int // way node references without coordinates
	BBoxFiltered int // way sections outside the bounding box
	Gaps         int // breaks where consecutive cells could not be joined
}

// Parse reads an OSM PBF file and traces every routable way into cell
// segments at opts.Resolution. The reader is consumed twice (seeks back to
// start for the second pass), so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, idx cellindex.Index, opts ParseOptions) (*ParseResult, error) {
	weights := opts.Weights
	if weights == nil {
		weights = DefaultHighwayWeights
	}

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if len(w.Nodes) < 2 {
			continue
		}
		weight, ok := wayWeight(w.Tags, weights)
		if !ok {
			continue
		}
		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, wayInfo{NodeIDs: nodeIDs, Weight: weight, Forward: fwd, Backward: bwd})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	coords := make(map[osm.NodeID]orb.Point, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		coords[n.ID] = n.Point()
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d node coordinates collected", len(coords))

	return traceWays(idx, ways, coords, opts)
}

// traceWays converts ways to segments. Split out of Parse so it can be
// exercised without a PBF file.
func traceWays(idx cellindex.Index, ways []wayInfo, coords map[osm.NodeID]orb.Point, opts ParseOptions) (*ParseResult, error) {
	res := &ParseResult{Ways: len(ways)}
	t := tracer{idx: idx, res: opts.Resolution}
	useBBox := !opts.BBox.IsZero()

	for _, w := range ways {
		var section orb.LineString
		flush := func() error {
			if len(section) >= 2 {
				runs, gaps, err := t.trace(section)
				if err != nil {
					return err
				}
				res.Gaps += gaps
				res.Segments = appendRuns(res.Segments, runs, w)
			}
			section = section[:0]
			return nil
		}

		for _, id := range w.NodeIDs {
			p, ok := coords[id]
			if !ok {
				res.MissingNodes++
				if err := flush(); err != nil {
					return nil, err
				}
				continue
			}
			if useBBox && !opts.BBox.Contains(p) {
				if len(section) > 0 {
					res.BBoxFiltered++
				}
				if err := flush(); err != nil {
					return nil, err
				}
				continue
			}
			section = append(section, p)
		}
		if err := flush(); err != nil {
			return nil, err
		}
	}

	if res.MissingNodes > 0 {
		log.Printf("Warning: %d way nodes had no coordinates", res.MissingNodes)
	}
	if res.BBoxFiltered > 0 {
		log.Printf("Filtered %d way sections leaving the bounding box", res.BBoxFiltered)
	}
	if res.Gaps > 0 {
		log.Printf("Warning: %d gaps between consecutive cells could not be bridged", res.Gaps)
	}
	log.Printf("Traced %d segments from %d ways", len(res.Segments), res.Ways)
	return res, nil
}

func appendRuns(segs []graph.Segment, runs [][]cellindex.Cell, w wayInfo) []graph.Segment {
	for _, run := range runs {
		if len(run) < 2 {
			continue
		}
		if !w.Forward {
			slices.Reverse(run)
		}
		segs = append(segs, graph.Segment{
			Cells:         run,
			Weight:        w.Weight,
			Bidirectional: w.Forward && w.Backward,
		})
	}
	return segs
}

// tracer turns polylines into runs of pairwise adjacent cells.
type tracer struct {
	idx cellindex.Index
	res int
}

// step returns the sampling distance in meters for lines starting at c:
// a quarter of the distance to a neighbouring centroid.
func (t *tracer) step(c cellindex.Cell) (float64, error) {
	ns := t.idx.Neighbors(c)
	if len(ns) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoNeighbors, c)
	}
	return t.idx.DistanceMeters(c, ns[0]) / 4, nil
}

// trace samples ls densely enough to visit every crossed cell. Where two
// consecutive samples land on cells that are not neighbours, a shared
// neighbour bridges them; if none exists the run is split.
func (t *tracer) trace(ls orb.LineString) (runs [][]cellindex.Cell, gaps int, err error) {
	first, err := t.idx.CellAt(ls[0].Lat(), ls[0].Lon(), t.res)
	if err != nil {
		return nil, 0, err
	}
	step, err := t.step(first)
	if err != nil {
		return nil, 0, err
	}

	run := []cellindex.Cell{first}
	for i := 1; i < len(ls); i++ {
		a, b := ls[i-1], ls[i]
		for _, p := range geo.Densify(a.Lat(), a.Lon(), b.Lat(), b.Lon(), step)[1:] {
			c, err := t.idx.CellAt(p[0], p[1], t.res)
			if err != nil {
				return nil, 0, err
			}
			last := run[len(run)-1]
			switch {
			case c == last:
			case t.idx.AreNeighbors(last, c):
				run = append(run, c)
			default:
				if bridge, ok := t.bridge(last, c); ok {
					run = append(run, bridge, c)
					continue
				}
				gaps++
				runs = append(runs, run)
				run = []cellindex.Cell{c}
			}
		}
	}
	return append(runs, run), gaps, nil
}

// bridge returns the smallest cell adjacent to both a and b.
func (t *tracer) bridge(a, b cellindex.Cell) (cellindex.Cell, bool) {
	var best cellindex.Cell
	found := false
	for _, n := range t.idx.Neighbors(a) {
		if t.idx.AreNeighbors(n, b) && (!found || cmp.Less(n, best)) {
			best, found = n, true
		}
	}
	return best, found
}
