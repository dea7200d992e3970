package cellindex

import (
	"fmt"
	"math"

	"github.com/uber/h3-go/v4"

	"h3_router/pkg/geo"
)

// MaxH3Resolution is the finest resolution supported by H3.
const MaxH3Resolution = 15

// H3 implements Index over the Uber H3 library.
type H3 struct{}

// NewH3 returns the H3-backed index.
func NewH3() H3 { return H3{} }

func toH3(c Cell) h3.Cell { return h3.Cell(int64(c)) }

func fromH3(c h3.Cell) Cell { return Cell(uint64(c)) }

func (H3) IsValid(c Cell) bool {
	return c != 0 && toH3(c).IsValid()
}

func (H3) Resolution(c Cell) int {
	return toH3(c).Resolution()
}

func (H3) Neighbors(c Cell) []Cell {
	disk := toH3(c).GridDisk(1)
	out := make([]Cell, 0, len(disk))
	for _, n := range disk {
		if n == toH3(c) {
			continue
		}
		out = append(out, fromH3(n))
	}
	return out
}

func (x H3) AreNeighbors(a, b Cell) bool {
	if a == b || !x.IsValid(a) || !x.IsValid(b) {
		return false
	}
	ha, hb := toH3(a), toH3(b)
	if ha.Resolution() != hb.Resolution() {
		return false
	}
	return ha.IsNeighbor(hb)
}

func (x H3) EdgeBetween(a, b Cell) (DirectedEdge, bool) {
	if !x.AreNeighbors(a, b) {
		return DirectedEdge{}, false
	}
	if !toH3(a).DirectedEdge(toH3(b)).IsValid() {
		return DirectedEdge{}, false
	}
	return DirectedEdge{Origin: a, Destination: b}, true
}

func (H3) GridDiskDistances(c Cell, k int) [][]Cell {
	if k < 0 {
		return nil
	}
	rings := toH3(c).GridDiskDistances(k)
	out := make([][]Cell, len(rings))
	for i, ring := range rings {
		out[i] = make([]Cell, 0, len(ring))
		for _, rc := range ring {
			if rc == 0 {
				continue // pentagon distortion leaves holes
			}
			out[i] = append(out[i], fromH3(rc))
		}
	}
	return out
}

func (x H3) DistanceMeters(a, b Cell) float64 {
	aLat, aLng := x.LatLng(a)
	bLat, bLng := x.LatLng(b)
	return geo.Haversine(aLat, aLng, bLat, bLng)
}

func (H3) CellAt(lat, lng float64, res int) (Cell, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, fmt.Errorf("%w: (%f, %f)", ErrInvalidCoordinate, lat, lng)
	}
	if res < 0 || res > MaxH3Resolution {
		return 0, fmt.Errorf("%w: resolution %d", ErrInvalidCoordinate, res)
	}
	return fromH3(h3.LatLngToCell(h3.NewLatLng(lat, lng), res)), nil
}

func (H3) LatLng(c Cell) (lat, lng float64) {
	ll := toH3(c).LatLng()
	return ll.Lat, ll.Lng
}
