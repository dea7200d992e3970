package cellindex

import (
	"errors"
	"strconv"
)

// Cell identifies a hexagonal (or pentagonal) region at a fixed resolution.
// The zero value is never a valid cell.
type Cell uint64

// String returns the hexadecimal form used by H3 tooling.
func (c Cell) String() string {
	return strconv.FormatUint(uint64(c), 16)
}

// ParseCell parses the hexadecimal form produced by String.
func ParseCell(s string) (Cell, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return Cell(v), nil
}

// DirectedEdge is an ordered pair of neighbouring cells.
type DirectedEdge struct {
	Origin      Cell
	Destination Cell
}

// ErrInvalidCoordinate is returned by CellAt for coordinates outside the index domain.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Index is the capability set the graph needs from a spatial cell index.
type Index interface {
	IsValid(c Cell) bool
	Resolution(c Cell) int
	Neighbors(c Cell) []Cell
	AreNeighbors(a, b Cell) bool
	EdgeBetween(a, b Cell) (DirectedEdge, bool)

	// GridDiskDistances returns the cells within k steps of c, grouped by
	// distance: element i holds the ring at distance i.
	GridDiskDistances(c Cell, k int) [][]Cell

	// DistanceMeters estimates the great-circle distance between cell centroids.
	DistanceMeters(a, b Cell) float64

	CellAt(lat, lng float64, res int) (Cell, error)
	LatLng(c Cell) (lat, lng float64)
}
