//go:build !h3router_debug

package graph

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corruptStore(t *testing.T) *Store {
	t.Helper()
	s := mustBuild(t, testOptions(t), Segment{Cells: line(0, 0, 4), Weight: 1})
	require.Equal(t, 1, s.LongEdgeCount())

	// Point the middle of the run at a cell the run never reaches.
	s.LongNodes = slices.Clone(s.LongNodes)
	s.LongNodes[2] = s.LongNodes[4]
	return s
}

func TestValidateRejectsCorruptLongEdge(t *testing.T) {
	assert.ErrorIs(t, corruptStore(t).Validate(), ErrCorruptLongEdge)
}

func TestCorruptLongEdgeFailsClosed(t *testing.T) {
	s := corruptStore(t)

	_, err := s.LongEdge(0)
	assert.ErrorIs(t, err, ErrCorruptLongEdge)

	_, err = s.FullGeometry(hex(0, 0), hex(4, 0))
	assert.ErrorIs(t, err, ErrCorruptLongEdge)
}

func TestValidateRejectsBadWeight(t *testing.T) {
	s := mustBuild(t, testOptions(t), Segment{Cells: line(0, 0, 1), Weight: 1})
	s.Weight = []float64{-1}
	assert.Error(t, s.Validate())
}

func TestLongEdgeOutOfRange(t *testing.T) {
	s := mustBuild(t, testOptions(t), Segment{Cells: line(0, 0, 1), Weight: 1})
	_, err := s.LongEdge(3)
	assert.ErrorIs(t, err, ErrNoEdge)
}
