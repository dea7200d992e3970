// Package spatial indexes graph node centroids for bounding box queries.
package spatial

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"h3_router/pkg/cellindex"
)

// ErrInvalidBBox is returned by ParseBBox for malformed or inverted boxes.
var ErrInvalidBBox = errors.New("invalid bounding box")

// Node is an indexed cell with its centroid.
type Node struct {
	Cell cellindex.Cell
	Lat  float64
	Lng  float64
}

// Index is an R-tree over node centroids. Safe for concurrent readers once built.
type Index struct {
	tree rtree.RTreeG[Node]
}

// New indexes the centroid of every cell.
func New(cells iter.Seq[cellindex.Cell], idx cellindex.Index) *Index {
	x := &Index{}
	for c := range cells {
		lat, lng := idx.LatLng(c)
		p := [2]float64{lng, lat}
		x.tree.Insert(p, p, Node{Cell: c, Lat: lat, Lng: lng})
	}
	return x
}

// Len returns the number of indexed nodes.
func (x *Index) Len() int { return x.tree.Len() }

// Search returns the nodes inside b ordered by cell, at most limit of them
// when limit > 0. The second result reports whether the answer was cut short.
func (x *Index) Search(b orb.Bound, limit int) ([]Node, bool) {
	var out []Node
	truncated := false
	x.tree.Search(
		[2]float64{b.Min.X(), b.Min.Y()},
		[2]float64{b.Max.X(), b.Max.Y()},
		func(_, _ [2]float64, n Node) bool {
			if limit > 0 && len(out) == limit {
				truncated = true
				return false
			}
			out = append(out, n)
			return true
		},
	)
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.Cell, b.Cell) })
	return out, truncated
}

// ParseBBox parses "minLat,minLng,maxLat,maxLng".
func ParseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: want minLat,minLng,maxLat,maxLng, got %q", ErrInvalidBBox, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: %v", ErrInvalidBBox, err)
		}
		v[i] = f
	}
	minLat, minLng, maxLat, maxLng := v[0], v[1], v[2], v[3]
	if minLat < -90 || maxLat > 90 || minLng < -180 || maxLng > 180 || minLat > maxLat || minLng > maxLng {
		return orb.Bound{}, fmt.Errorf("%w: %q", ErrInvalidBBox, s)
	}
	return orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}, nil
}
