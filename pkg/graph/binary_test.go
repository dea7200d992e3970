package graph_test

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h3_router/pkg/cellindex"
	"h3_router/pkg/graph"
)

func buildTestStore(t *testing.T) *graph.Store {
	t.Helper()
	grid := cellindex.NewHexGrid(0.01)
	hex := func(q, r int) cellindex.Cell { return grid.Encode(q, r, 8) }

	segs := []graph.Segment{
		{Cells: []cellindex.Cell{hex(0, 0), hex(1, 0), hex(2, 0), hex(3, 0), hex(4, 0)}, Weight: 1.5, Bidirectional: true},
		{Cells: []cellindex.Cell{hex(2, 0), hex(2, 1), hex(2, 2)}, Weight: 4},
		{Cells: []cellindex.Cell{hex(9, 9)}},
	}
	opts := graph.DefaultBuildOptions()
	opts.Logf = t.Logf
	s, err := graph.Build(grid, slices.Values(segs), opts)
	require.NoError(t, err)
	require.NotZero(t, s.LongEdgeCount())
	return s
}

func TestBinaryRoundTrip(t *testing.T) {
	original := buildTestStore(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.graph.bin")

	require.NoError(t, graph.WriteBinary(path, original))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	loaded, err := graph.ReadBinary(path)
	require.NoError(t, err)

	assert.Equal(t, original.Res, loaded.Res)
	assert.Equal(t, original.Cells, loaded.Cells)
	assert.Equal(t, original.FirstOut, loaded.FirstOut)
	assert.Equal(t, original.Head, loaded.Head)
	assert.Equal(t, original.Weight, loaded.Weight)
	assert.Equal(t, original.LongEdgeOf, loaded.LongEdgeOf)
	assert.Equal(t, original.LongFirst, loaded.LongFirst)
	assert.Equal(t, original.LongNodes, loaded.LongNodes)
	assert.Equal(t, original.LongWeight, loaded.LongWeight)

	for c := range original.Nodes() {
		assert.Equal(t, original.OutEdges(c), loaded.OutEdges(c))
	}
}

func TestBinaryRoundTripEmpty(t *testing.T) {
	s, err := graph.Build(cellindex.NewHexGrid(1), slices.Values([]graph.Segment(nil)), graph.BuildOptions{Logf: t.Logf})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, graph.Encode(&buf, s))

	loaded, err := graph.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.NodeCount())
	assert.Equal(t, -1, loaded.Resolution())
}

func TestBinaryInvalidMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.graph.bin")
	require.NoError(t, os.WriteFile(path, []byte("NOT_H3ROUTER_HEADER_BLAH_BLAH_BLAH_MORE_DATA"), 0644))

	_, err := graph.ReadBinary(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid magic bytes")
}

func TestBinaryTruncatedFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, graph.Encode(&buf, buildTestStore(t)))
	data := buf.Bytes()

	for _, n := range []int{8, 32, len(data) / 2, len(data) - 1} {
		_, err := graph.Decode(bytes.NewReader(data[:n]))
		assert.Error(t, err, "truncated to %d bytes", n)
	}
}

func TestBinaryCorruptedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, graph.Encode(&buf, buildTestStore(t)))
	data := buf.Bytes()
	data[len(data)-12] ^= 0xFF

	_, err := graph.Decode(bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRC32 mismatch")
}
