package graph

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"h3_router/pkg/cellindex"
)

const (
	magicBytes   = "H3ROUTER"
	version      = uint32(1)
	maxNodes     = 100_000_000
	maxEdges     = 600_000_000
	maxLongNodes = 600_000_000
)

// fileHeader is the binary header.
type fileHeader struct {
	Magic        [8]byte
	Version      uint32
	Resolution   int32
	NumNodes     uint32
	NumEdges     uint32
	NumLongEdges uint32
	NumLongNodes uint32
}

// WriteBinary serializes a Store to a binary file.
// The file is written next to path and renamed into place once complete.
func WriteBinary(path string, s *Store) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	if err := Encode(f, s); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Encode writes s followed by a CRC32 trailer.
func Encode(w io.Writer, s *Store) error {
	crcWriter := crc32Writer{w: w, hash: crc32.NewIEEE()}
	cw := &crcWriter

	hdr := fileHeader{
		Version:      version,
		Resolution:   s.Res,
		NumNodes:     s.NumNodes(),
		NumEdges:     uint32(len(s.Head)),
		NumLongEdges: uint32(len(s.LongWeight)),
		NumLongNodes: uint32(len(s.LongNodes)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(cw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if err := writeSlice(cw, s.Cells); err != nil {
		return fmt.Errorf("write Cells: %w", err)
	}
	if err := writeSlice(cw, s.FirstOut); err != nil {
		return fmt.Errorf("write FirstOut: %w", err)
	}
	if err := writeSlice(cw, s.Head); err != nil {
		return fmt.Errorf("write Head: %w", err)
	}
	if err := writeSlice(cw, s.Weight); err != nil {
		return fmt.Errorf("write Weight: %w", err)
	}
	if err := writeSlice(cw, s.LongEdgeOf); err != nil {
		return fmt.Errorf("write LongEdgeOf: %w", err)
	}
	if err := writeSlice(cw, s.LongFirst); err != nil {
		return fmt.Errorf("write LongFirst: %w", err)
	}
	if err := writeSlice(cw, s.LongNodes); err != nil {
		return fmt.Errorf("write LongNodes: %w", err)
	}
	if err := writeSlice(cw, s.LongWeight); err != nil {
		return fmt.Errorf("write LongWeight: %w", err)
	}

	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(w, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}
	return nil
}

// ReadBinary deserializes a Store from a binary file.
func ReadBinary(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a Store written by Encode and validates it.
func Decode(r io.Reader) (*Store, error) {
	crcReader := crc32Reader{r: r, hash: crc32.NewIEEE()}
	cr := &crcReader

	var hdr fileHeader
	if err := binary.Read(cr, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumNodes > maxNodes {
		return nil, fmt.Errorf("NumNodes %d exceeds limit %d", hdr.NumNodes, maxNodes)
	}
	if hdr.NumEdges > maxEdges || hdr.NumLongEdges > hdr.NumEdges {
		return nil, fmt.Errorf("edge count exceeds limit %d", maxEdges)
	}
	if hdr.NumLongNodes > maxLongNodes {
		return nil, fmt.Errorf("NumLongNodes %d exceeds limit %d", hdr.NumLongNodes, maxLongNodes)
	}

	s := &Store{Res: hdr.Resolution}
	var err error
	if s.Cells, err = readSlice[cellindex.Cell](cr, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read Cells: %w", err)
	}
	if s.FirstOut, err = readSlice[uint32](cr, int(hdr.NumNodes)+1); err != nil {
		return nil, fmt.Errorf("read FirstOut: %w", err)
	}
	if s.Head, err = readSlice[uint32](cr, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Head: %w", err)
	}
	if s.Weight, err = readSlice[float64](cr, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read Weight: %w", err)
	}
	if s.LongEdgeOf, err = readSlice[int32](cr, int(hdr.NumEdges)); err != nil {
		return nil, fmt.Errorf("read LongEdgeOf: %w", err)
	}
	if s.LongFirst, err = readSlice[uint32](cr, int(hdr.NumLongEdges)+1); err != nil {
		return nil, fmt.Errorf("read LongFirst: %w", err)
	}
	if s.LongNodes, err = readSlice[uint32](cr, int(hdr.NumLongNodes)); err != nil {
		return nil, fmt.Errorf("read LongNodes: %w", err)
	}
	if s.LongWeight, err = readSlice[float64](cr, int(hdr.NumLongEdges)); err != nil {
		return nil, fmt.Errorf("read LongWeight: %w", err)
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(r, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("graph invalid: %w", err)
	}
	return s, nil
}

// validateCSR checks CSR invariants.
func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	numEdges := firstOut[numNodes]
	if uint32(len(head)) != numEdges {
		return fmt.Errorf("Head length %d != FirstOut[NumNodes] %d", len(head), numEdges)
	}
	if firstOut[0] != 0 {
		return fmt.Errorf("FirstOut[0]=%d, want 0", firstOut[0])
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return fmt.Errorf("Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice.

type fixedSize interface {
	~uint32 | ~int32 | ~uint64 | ~float64
}

func writeSlice[T fixedSize](w io.Writer, s []T) error {
	if len(s) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(s[0]))
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size)
	_, err := w.Write(b)
	return err
}

func readSlice[T fixedSize](r io.Reader, n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]T, n)
	size := int(unsafe.Sizeof(s[0]))
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*size)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash hash.Hash32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash hash.Hash32
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
