// Package graph implements the small undirected graphs exchanged during a
// GraphShake handshake and the vertex relabelings applied to them.
//
// A Graph is an N×N symmetric 0/1 adjacency matrix with a zero diagonal.
// Graphs are immutable: relabeling a graph with a Permutation always yields a
// new Graph.
package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSize    = errors.New("invalid graph size")
	ErrMalformedGraph = errors.New("malformed graph")
)

// Graph is a symmetric, loop-free adjacency matrix stored row-major.
type Graph struct {
	n     int
	cells []uint8
}

// New returns an edgeless graph on n vertices.
func New(n int) (*Graph, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	return &Graph{n: n, cells: make([]uint8, n*n)}, nil
}

// FromCells builds a graph from n*n row-major cells.
// The cells are copied and validated.
func FromCells(n int, cells []uint8) (*Graph, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	if len(cells) != n*n {
		return nil, fmt.Errorf("%w: %d cells for %d vertices", ErrMalformedGraph, len(cells), n)
	}

	g := &Graph{n: n, cells: make([]uint8, n*n)}
	copy(g.cells, cells)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// FromRows builds a graph from a square matrix.
func FromRows(rows [][]uint8) (*Graph, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}

	cells := make([]uint8, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrMalformedGraph, i, len(row), n)
		}
		cells = append(cells, row...)
	}
	return FromCells(n, cells)
}

// Validate checks the adjacency invariants: cells in {0,1}, symmetry and no self-loops.
func (g *Graph) Validate() error {
	for i := 0; i < g.n; i++ {
		if g.cells[i*g.n+i] != 0 {
			return fmt.Errorf("%w: self-loop on vertex %d", ErrMalformedGraph, i)
		}
		for j := 0; j < g.n; j++ {
			v := g.cells[i*g.n+j]
			if v > 1 {
				return fmt.Errorf("%w: cell (%d,%d) = %d", ErrMalformedGraph, i, j, v)
			}
			if v != g.cells[j*g.n+i] {
				return fmt.Errorf("%w: cell (%d,%d) not mirrored", ErrMalformedGraph, i, j)
			}
		}
	}
	return nil
}

// Size returns the vertex count N.
func (g *Graph) Size() int {
	return g.n
}

// At returns the adjacency cell (i, j).
func (g *Graph) At(i, j int) uint8 {
	return g.cells[i*g.n+j]
}

// Cells returns a copy of the row-major adjacency cells.
func (g *Graph) Cells() []uint8 {
	out := make([]uint8, len(g.cells))
	copy(out, g.cells)
	return out
}

// Rows returns a copy of the adjacency matrix as rows.
func (g *Graph) Rows() [][]uint8 {
	rows := make([][]uint8, g.n)
	for i := range rows {
		rows[i] = make([]uint8, g.n)
		copy(rows[i], g.cells[i*g.n:(i+1)*g.n])
	}
	return rows
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for i := 0; i < g.n; i++ {
		for j := i + 1; j < g.n; j++ {
			count += int(g.cells[i*g.n+j])
		}
	}
	return count
}

// Degrees returns the degree of every vertex.
func (g *Graph) Degrees() []int {
	deg := make([]int, g.n)
	for i := 0; i < g.n; i++ {
		for j := 0; j < g.n; j++ {
			deg[i] += int(g.cells[i*g.n+j])
		}
	}
	return deg
}

// Equal reports whether both graphs have the same dimension and identical cells.
func (g *Graph) Equal(other *Graph) bool {
	if g == nil || other == nil {
		return g == other
	}
	if g.n != other.n {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// String renders the matrix one row per line, cells separated by spaces.
func (g *Graph) String() string {
	var sb strings.Builder
	for i := 0; i < g.n; i++ {
		for j := 0; j < g.n; j++ {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte('0' + g.cells[i*g.n+j])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (g *Graph) set(i, j int, v uint8) {
	g.cells[i*g.n+j] = v
}
