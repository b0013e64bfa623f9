package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ZentaChain/graphshake/pkg/graph"
)

// ErrElementRange reports a graph frame cell outside {0,1}.
var ErrElementRange = errors.New("frame element out of range")

// FramingError reports a frame whose byte length does not match its
// fixed size for the session's vertex count.
type FramingError struct {
	Frame    string // "graph" or "permutation"
	Expected int
	Actual   int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %s frame is %d bytes, want %d", e.Frame, e.Actual, e.Expected)
}

// GraphFrameSize returns the byte length of a graph frame for n vertices.
func GraphFrameSize(n int) int {
	return n * n * ElementSize
}

// PermutationFrameSize returns the byte length of a permutation frame for n vertices.
func PermutationFrameSize(n int) int {
	return n * ElementSize
}

// EncodeGraph flattens g row-major into big-endian 4-byte cells.
func EncodeGraph(g *graph.Graph) []byte {
	n := g.Size()
	buf := make([]byte, GraphFrameSize(n))

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			off := (i*n + j) * ElementSize
			binary.BigEndian.PutUint32(buf[off:off+ElementSize], uint32(g.At(i, j)))
		}
	}
	return buf
}

// DecodeGraph reconstructs an n-vertex graph from a graph frame.
func DecodeGraph(buf []byte, n int) (*graph.Graph, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", graph.ErrInvalidSize, n)
	}
	if len(buf) != GraphFrameSize(n) {
		return nil, &FramingError{Frame: "graph", Expected: GraphFrameSize(n), Actual: len(buf)}
	}

	cells := make([]uint8, n*n)
	for k := range cells {
		v := binary.BigEndian.Uint32(buf[k*ElementSize : (k+1)*ElementSize])
		if v > 1 {
			return nil, fmt.Errorf("%w: %w: cell (%d,%d) = %d", graph.ErrMalformedGraph, ErrElementRange, k/n, k%n, v)
		}
		cells[k] = uint8(v)
	}
	return graph.FromCells(n, cells)
}

// EncodePermutation writes p as big-endian 4-byte elements.
func EncodePermutation(p graph.Permutation) []byte {
	buf := make([]byte, PermutationFrameSize(len(p)))
	for i, v := range p {
		binary.BigEndian.PutUint32(buf[i*ElementSize:(i+1)*ElementSize], uint32(v))
	}
	return buf
}

// DecodePermutation reconstructs a permutation on n vertices and checks it is a bijection.
func DecodePermutation(buf []byte, n int) (graph.Permutation, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", graph.ErrInvalidSize, n)
	}
	if len(buf) != PermutationFrameSize(n) {
		return nil, &FramingError{Frame: "permutation", Expected: PermutationFrameSize(n), Actual: len(buf)}
	}

	p := make(graph.Permutation, n)
	for i := range p {
		v := binary.BigEndian.Uint32(buf[i*ElementSize : (i+1)*ElementSize])
		if v >= uint32(n) {
			return nil, fmt.Errorf("%w: p[%d] = %d out of range", graph.ErrInvalidPermutation, i, v)
		}
		p[i] = int(v)
	}

	if err := p.Validate(n); err != nil {
		return nil, err
	}
	return p, nil
}
