package routing

import (
	"cmp"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"h3_router/pkg/cellindex"
)

// PathKind distinguishes the two shapes a found path can take.
type PathKind uint8

const (
	// EdgeSequence is a path of one or more edges.
	EdgeSequence PathKind = iota
	// OriginIsDestination is the zero-weight path of a single cell.
	OriginIsDestination
)

func (k PathKind) String() string {
	switch k {
	case OriginIsDestination:
		return "origin_is_destination"
	default:
		return "edge_sequence"
	}
}

// Path is a route through the graph. Cells starts with Origin, ends with
// Destination, and every consecutive pair is a plain graph edge.
type Path struct {
	Kind        PathKind
	Origin      cellindex.Cell
	Destination cellindex.Cell
	Cells       []cellindex.Cell
	Weight      float64
}

func originIsDestination(c cellindex.Cell) Path {
	return Path{
		Kind:        OriginIsDestination,
		Origin:      c,
		Destination: c,
		Cells:       []cellindex.Cell{c},
	}
}

// Len returns the number of edges in the path.
func (p Path) Len() int {
	return max(len(p.Cells)-1, 0)
}

// LineString returns the path through the cell centroids.
func (p Path) LineString(idx cellindex.Index) orb.LineString {
	ls := make(orb.LineString, 0, len(p.Cells))
	for _, c := range p.Cells {
		lat, lng := idx.LatLng(c)
		ls = append(ls, orb.Point{lng, lat})
	}
	return ls
}

// Feature returns the path as a GeoJSON feature carrying its weight and cells.
// A single-cell path is a Point.
func (p Path) Feature(idx cellindex.Index) *geojson.Feature {
	var geom orb.Geometry = p.LineString(idx)
	if len(p.Cells) == 1 {
		geom = geom.(orb.LineString)[0]
	}
	f := geojson.NewFeature(geom)
	cells := make([]string, len(p.Cells))
	for i, c := range p.Cells {
		cells[i] = c.String()
	}
	f.Properties["kind"] = p.Kind.String()
	f.Properties["origin"] = p.Origin.String()
	f.Properties["destination"] = p.Destination.String()
	f.Properties["weight"] = p.Weight
	f.Properties["cells"] = cells
	return f
}

// ComparePaths orders paths by weight, then origin, then destination.
func ComparePaths(a, b Path) int {
	if c := cmp.Compare(a.Weight, b.Weight); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Origin, b.Origin); c != 0 {
		return c
	}
	return cmp.Compare(a.Destination, b.Destination)
}

// SortPaths sorts paths in ComparePaths order.
func SortPaths(paths []Path) {
	slices.SortFunc(paths, ComparePaths)
}
