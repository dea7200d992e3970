package cellindex

import (
	"fmt"
	"math"

	"h3_router/pkg/geo"
)

// HexGrid is a planar hexagonal grid using axial coordinates (q, r).
// Coordinates are laid out pointy-top with longitude as x and latitude as y,
// which makes it usable for synthetic networks and small raster-derived
// graphs where projection error does not matter.
//
// Cell layout:
//
//	bit 63      always set
//	bits 56..59 resolution
//	bits 28..55 q + 2^27
//	bits 0..27  r + 2^27
type HexGrid struct {
	// BaseSize is the centre-to-corner size of a resolution 0 cell in degrees.
	// Each finer resolution halves it.
	BaseSize float64
}

const (
	hexValidBit   = uint64(1) << 63
	hexCoordBits  = 28
	hexCoordMask  = uint64(1)<<hexCoordBits - 1
	hexCoordShift = int64(1) << (hexCoordBits - 1)
	hexResShift   = 56
	hexMaxRes     = 15
)

// HexDirections are the six axial neighbour offsets, in ring-walk order.
var HexDirections = [6][2]int{
	{1, 0},
	{1, -1},
	{0, -1},
	{-1, 0},
	{-1, 1},
	{0, 1},
}

// NewHexGrid returns a grid whose resolution 0 cells are baseSize degrees wide.
func NewHexGrid(baseSize float64) HexGrid {
	if baseSize <= 0 {
		baseSize = 1
	}
	return HexGrid{BaseSize: baseSize}
}

// Encode returns the cell at axial coordinates (q, r) and resolution res.
func (HexGrid) Encode(q, r, res int) Cell {
	uq := uint64(int64(q)+hexCoordShift) & hexCoordMask
	ur := uint64(int64(r)+hexCoordShift) & hexCoordMask
	return Cell(hexValidBit | uint64(res)<<hexResShift | uq<<hexCoordBits | ur)
}

// Decode is the inverse of Encode.
func (g HexGrid) Decode(c Cell) (q, r, res int, ok bool) {
	if !g.IsValid(c) {
		return 0, 0, 0, false
	}
	v := uint64(c)
	res = int(v >> hexResShift & 0xF)
	q = int(int64(v>>hexCoordBits&hexCoordMask) - hexCoordShift)
	r = int(int64(v&hexCoordMask) - hexCoordShift)
	return q, r, res, true
}

func (HexGrid) IsValid(c Cell) bool {
	v := uint64(c)
	if v&hexValidBit == 0 {
		return false
	}
	// bits 60..62 are reserved
	return v>>60&0x7 == 0
}

func (g HexGrid) Resolution(c Cell) int {
	_, _, res, _ := g.Decode(c)
	return res
}

func (g HexGrid) Neighbors(c Cell) []Cell {
	q, r, res, ok := g.Decode(c)
	if !ok {
		return nil
	}
	out := make([]Cell, 0, len(HexDirections))
	for _, d := range HexDirections {
		out = append(out, g.Encode(q+d[0], r+d[1], res))
	}
	return out
}

func (g HexGrid) AreNeighbors(a, b Cell) bool {
	return g.GridDistance(a, b) == 1
}

func (g HexGrid) EdgeBetween(a, b Cell) (DirectedEdge, bool) {
	if !g.AreNeighbors(a, b) {
		return DirectedEdge{}, false
	}
	return DirectedEdge{Origin: a, Destination: b}, true
}

func (g HexGrid) GridDiskDistances(c Cell, k int) [][]Cell {
	q, r, res, ok := g.Decode(c)
	if !ok || k < 0 {
		return nil
	}
	rings := make([][]Cell, k+1)
	rings[0] = []Cell{c}
	for radius := 1; radius <= k; radius++ {
		ring := make([]Cell, 0, 6*radius)
		hq := q + HexDirections[4][0]*radius
		hr := r + HexDirections[4][1]*radius
		for i := range 6 {
			for range radius {
				ring = append(ring, g.Encode(hq, hr, res))
				hq += HexDirections[i][0]
				hr += HexDirections[i][1]
			}
		}
		rings[radius] = ring
	}
	return rings
}

// GridDistance returns the number of steps between two cells of the same
// resolution, or -1.
func (g HexGrid) GridDistance(a, b Cell) int {
	aq, ar, ares, ok := g.Decode(a)
	if !ok {
		return -1
	}
	bq, br, bres, ok := g.Decode(b)
	if !ok || ares != bres {
		return -1
	}
	return axialDistance(aq, ar, bq, br)
}

func (g HexGrid) DistanceMeters(a, b Cell) float64 {
	aLat, aLng := g.LatLng(a)
	bLat, bLng := g.LatLng(b)
	return geo.Haversine(aLat, aLng, bLat, bLng)
}

func (g HexGrid) size(res int) float64 {
	base := g.BaseSize
	if base <= 0 {
		base = 1
	}
	return base / float64(uint64(1)<<uint(res))
}

func (g HexGrid) CellAt(lat, lng float64, res int) (Cell, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return 0, fmt.Errorf("%w: (%f, %f)", ErrInvalidCoordinate, lat, lng)
	}
	if res < 0 || res > hexMaxRes {
		return 0, fmt.Errorf("%w: resolution %d", ErrInvalidCoordinate, res)
	}
	s := g.size(res)
	fq := (math.Sqrt(3)/3*lng - lat/3) / s
	fr := (2.0 / 3 * lat) / s
	q, r := axialRound(fq, fr)
	return g.Encode(q, r, res), nil
}

func (g HexGrid) LatLng(c Cell) (lat, lng float64) {
	q, r, res, ok := g.Decode(c)
	if !ok {
		return 0, 0
	}
	s := g.size(res)
	lng = s * math.Sqrt(3) * (float64(q) + float64(r)/2)
	lat = s * 1.5 * float64(r)
	return lat, lng
}

func axialDistance(aq, ar, bq, br int) int {
	dq := abs(aq - bq)
	dr := abs(ar - br)
	ds := abs((-aq - ar) - (-bq - br))
	return max(dq, dr, ds)
}

// axialRound rounds fractional axial coordinates to the containing hex.
func axialRound(fq, fr float64) (int, int) {
	fs := -fq - fr
	q, r, s := math.Round(fq), math.Round(fr), math.Round(fs)
	dq, dr, ds := math.Abs(q-fq), math.Abs(r-fr), math.Abs(s-fs)
	if dq > dr && dq > ds {
		q = -r - s
	} else if dr > ds {
		r = -q - s
	}
	return int(q), int(r)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
