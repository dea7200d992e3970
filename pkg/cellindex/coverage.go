package cellindex

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/uber/h3-go/v4"
)

// ErrMixedResolutions is returned when a cell set spans several resolutions.
var ErrMixedResolutions = errors.New("cells at mixed resolutions")

// coverageTolerance is the Douglas-Peucker threshold in degrees applied to
// coverage outlines.
const coverageTolerance = 1e-6

// CoveredArea outlines the area covered by cells. The cells are first
// coarsened by reduceBy resolutions, which overestimates the area but keeps
// the outline small. Holes are dropped and rings are lightly simplified.
// An empty sequence yields an empty multipolygon.
func (H3) CoveredArea(cells iter.Seq[Cell], reduceBy int) (orb.MultiPolygon, error) {
	res := -1
	parents := make(map[h3.Cell]struct{})
	for c := range cells {
		hc := toH3(c)
		if c == 0 || !hc.IsValid() {
			return nil, fmt.Errorf("covered area: invalid cell %s", c)
		}
		switch r := hc.Resolution(); {
		case res < 0:
			res = r
		case r != res:
			return nil, fmt.Errorf("%w: %d and %d", ErrMixedResolutions, res, r)
		}
		parents[hc.Parent(max(res-max(reduceBy, 0), 0))] = struct{}{}
	}
	if len(parents) == 0 {
		return orb.MultiPolygon{}, nil
	}

	sorted := slices.Sorted(maps.Keys(parents))
	dp := simplify.DouglasPeucker(coverageTolerance)
	polys := h3.CellsToMultiPolygon(sorted)
	out := make(orb.MultiPolygon, 0, len(polys))
	for _, gp := range polys {
		ring := make(orb.Ring, 0, len(gp.GeoLoop)+1)
		for _, ll := range gp.GeoLoop {
			ring = append(ring, orb.Point{ll.Lng, ll.Lat})
		}
		if len(ring) == 0 {
			continue
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		out = append(out, orb.Polygon{dp.Ring(ring)})
	}
	return out, nil
}
