package graph

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"
	"runtime"
	"slices"
	"sort"

	"h3_router/pkg/cellindex"
)

var (
	// ErrInvalidSegment is returned for empty segments, invalid cells,
	// non-adjacent consecutive cells and unusable weights.
	ErrInvalidSegment = errors.New("invalid segment")
	// ErrConflictingWeight is returned when one directed edge is given two weights.
	ErrConflictingWeight = errors.New("conflicting edge weight")
	// ErrResolutionMismatch is returned when cells of different resolutions meet.
	ErrResolutionMismatch = errors.New("resolution mismatch")
	ErrInvalidOptions     = errors.New("invalid build options")
)

// DefaultMinLongEdgeLength is the shortest run, in hops, recorded as a long edge.
const DefaultMinLongEdgeLength = 2

// Segment is a run of pairwise adjacent cells. Weight applies to every hop.
// A single-cell segment adds an isolated node.
type Segment struct {
	Cells         []cellindex.Cell
	Weight        float64
	Bidirectional bool // also add every hop reversed
}

// SegmentError reports which input segment was rejected.
type SegmentError struct {
	Index int
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v", e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// ConflictError describes a directed edge that was given two different weights.
type ConflictError struct {
	Edge     cellindex.DirectedEdge
	Existing float64
	Incoming float64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("edge %s -> %s: weight %v conflicts with %v",
		e.Edge.Origin, e.Edge.Destination, e.Incoming, e.Existing)
}

func (e *ConflictError) Unwrap() error { return ErrConflictingWeight }

// ConflictPolicy decides what happens when a directed edge is added twice
// with different weights.
type ConflictPolicy uint8

const (
	ConflictReject      ConflictPolicy = iota // fail the build
	ConflictKeepMinimum                       // keep the smaller weight
)

// BuildOptions configures Build and Compact.
type BuildOptions struct {
	MinLongEdgeLength   int  // hops; 0 means DefaultMinLongEdgeLength, otherwise >= 2
	DisableCompaction   bool // skip long edge detection in Build
	Conflicts           ConflictPolicy
	SkipInvalidSegments bool // log and drop invalid segments instead of failing
	Workers             int  // compaction goroutines; 0 means runtime.NumCPU()
	Logf                func(format string, args ...any)
}

// DefaultBuildOptions returns the options used when nothing else is specified.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		MinLongEdgeLength: DefaultMinLongEdgeLength,
		Workers:           runtime.NumCPU(),
		Logf:              log.Printf,
	}
}

func (o BuildOptions) normalize() (BuildOptions, error) {
	if o.MinLongEdgeLength == 0 {
		o.MinLongEdgeLength = DefaultMinLongEdgeLength
	}
	if o.MinLongEdgeLength < 2 {
		return o, fmt.Errorf("%w: MinLongEdgeLength %d < 2", ErrInvalidOptions, o.MinLongEdgeLength)
	}
	if o.Workers < 0 {
		return o, fmt.Errorf("%w: Workers %d < 0", ErrInvalidOptions, o.Workers)
	}
	if o.Workers == 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Conflicts > ConflictKeepMinimum {
		return o, fmt.Errorf("%w: unknown conflict policy %d", ErrInvalidOptions, o.Conflicts)
	}
	if o.Logf == nil {
		o.Logf = log.Printf
	}
	return o, nil
}

// edgeSet accumulates validated segments before the CSR is laid out.
type edgeSet struct {
	res    int
	nodes  map[cellindex.Cell]struct{}
	edges  map[cellindex.DirectedEdge]float64
	policy ConflictPolicy
}

func newEdgeSet(policy ConflictPolicy) *edgeSet {
	return &edgeSet{
		res:    -1,
		nodes:  make(map[cellindex.Cell]struct{}),
		edges:  make(map[cellindex.DirectedEdge]float64),
		policy: policy,
	}
}

// checkSegment validates seg without modifying the set.
func (b *edgeSet) checkSegment(idx cellindex.Index, seg Segment) error {
	if len(seg.Cells) == 0 {
		return fmt.Errorf("%w: no cells", ErrInvalidSegment)
	}
	if !validWeight(seg.Weight) {
		return fmt.Errorf("%w: weight %v", ErrInvalidSegment, seg.Weight)
	}
	res := b.res
	for i, c := range seg.Cells {
		if !idx.IsValid(c) {
			return fmt.Errorf("%w: cell %d (%s) is not valid", ErrInvalidSegment, i, c)
		}
		r := idx.Resolution(c)
		if res == -1 {
			res = r
		} else if r != res {
			return fmt.Errorf("%w: cell %s at resolution %d, expected %d", ErrResolutionMismatch, c, r, res)
		}
		if i > 0 && !idx.AreNeighbors(seg.Cells[i-1], c) {
			return fmt.Errorf("%w: cells %d and %d are not adjacent", ErrInvalidSegment, i-1, i)
		}
	}
	return nil
}

func (b *edgeSet) addEdge(from, to cellindex.Cell, w float64) error {
	key := cellindex.DirectedEdge{Origin: from, Destination: to}
	existing, ok := b.edges[key]
	switch {
	case !ok:
		b.edges[key] = w
	case existing == w:
	case b.policy == ConflictKeepMinimum:
		b.edges[key] = min(existing, w)
	default:
		return &ConflictError{Edge: key, Existing: existing, Incoming: w}
	}
	return nil
}

func (b *edgeSet) addSegment(idx cellindex.Index, seg Segment) error {
	if b.res == -1 {
		b.res = idx.Resolution(seg.Cells[0])
	}
	for _, c := range seg.Cells {
		b.nodes[c] = struct{}{}
	}
	for i := 0; i+1 < len(seg.Cells); i++ {
		if err := b.addEdge(seg.Cells[i], seg.Cells[i+1], seg.Weight); err != nil {
			return err
		}
		if seg.Bidirectional {
			if err := b.addEdge(seg.Cells[i+1], seg.Cells[i], seg.Weight); err != nil {
				return err
			}
		}
	}
	return nil
}

// Build assembles an immutable Store from segments and, unless disabled,
// records long edges over its same-weight corridors.
func Build(idx cellindex.Index, segments iter.Seq[Segment], opts BuildOptions) (*Store, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	b := newEdgeSet(opts.Conflicts)
	var n, skipped int
	for seg := range segments {
		i := n
		n++
		if err := b.checkSegment(idx, seg); err != nil {
			if opts.SkipInvalidSegments && !errors.Is(err, ErrResolutionMismatch) {
				opts.Logf("Skipping segment %d: %v", i, err)
				skipped++
				continue
			}
			return nil, &SegmentError{Index: i, Err: err}
		}
		if err := b.addSegment(idx, seg); err != nil {
			return nil, &SegmentError{Index: i, Err: err}
		}
	}
	if skipped > 0 {
		opts.Logf("Warning: skipped %d of %d segments", skipped, n)
	}

	s := b.store()
	opts.Logf("Graph: %d nodes, %d edges from %d segments", s.NodeCount(), s.EdgeCount(), n-skipped)

	if opts.DisableCompaction {
		return s, nil
	}
	return compact(s, opts)
}

// store lays the accumulated edges out as CSR without long edges.
func (b *edgeSet) store() *Store {
	if len(b.nodes) == 0 {
		return emptyStore()
	}
	cells := slices.Sorted(maps.Keys(b.nodes))
	numNodes := uint32(len(cells))

	type compactEdge struct {
		from, to uint32
		weight   float64
	}
	compacted := make([]compactEdge, 0, len(b.edges))
	for e, w := range b.edges {
		from, _ := slices.BinarySearch(cells, e.Origin)
		to, _ := slices.BinarySearch(cells, e.Destination)
		compacted = append(compacted, compactEdge{from: uint32(from), to: uint32(to), weight: w})
	}
	sort.Slice(compacted, func(i, j int) bool {
		if compacted[i].from != compacted[j].from {
			return compacted[i].from < compacted[j].from
		}
		return compacted[i].to < compacted[j].to
	})

	numEdges := len(compacted)
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	weight := make([]float64, numEdges)
	longEdgeOf := make([]int32, numEdges)
	for i, e := range compacted {
		head[i] = e.to
		weight[i] = e.weight
		longEdgeOf[i] = noLongEdge
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	return &Store{
		Res:        int32(b.res),
		Cells:      cells,
		FirstOut:   firstOut,
		Head:       head,
		Weight:     weight,
		LongEdgeOf: longEdgeOf,
		LongFirst:  []uint32{0},
	}
}
