package graph

import (
	"errors"
	"fmt"
)

var ErrInvalidPermutation = errors.New("invalid permutation")

// Permutation is a bijection on vertex indices: vertex i is relabeled p[i].
type Permutation []int

// Identity returns the identity permutation on n vertices.
func Identity(n int) Permutation {
	p := make(Permutation, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// RandomPermutation returns a uniformly random bijection on [0, n) using a
// Fisher-Yates shuffle of the identity.
func RandomPermutation(n int, src RandomSource) (Permutation, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	if src == nil {
		return nil, fmt.Errorf("random permutation: nil random source")
	}

	p := Identity(n)
	for i := n - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p, nil
}

// Validate checks that p is a bijection on [0, n).
func (p Permutation) Validate(n int) error {
	if len(p) != n {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidPermutation, len(p), n)
	}

	seen := make([]bool, n)
	for i, v := range p {
		if v < 0 || v >= n {
			return fmt.Errorf("%w: p[%d] = %d out of range", ErrInvalidPermutation, i, v)
		}
		if seen[v] {
			return fmt.Errorf("%w: value %d repeated", ErrInvalidPermutation, v)
		}
		seen[v] = true
	}
	return nil
}

// Invert returns q with q[p[i]] = i. Only meaningful when p is a bijection.
func (p Permutation) Invert() Permutation {
	inv := make(Permutation, len(p))
	for i, v := range p {
		inv[v] = i
	}
	return inv
}

// Compose returns the permutation that applies p first, then q.
func (p Permutation) Compose(q Permutation) Permutation {
	out := make(Permutation, len(p))
	for i, v := range p {
		out[i] = q[v]
	}
	return out
}

// Equal reports whether both permutations map every index identically.
func (p Permutation) Equal(other Permutation) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Apply relabels every vertex i of g as p[i]:
// result[p[i]][p[j]] = g[i][j].
func Apply(g *Graph, p Permutation) (*Graph, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", ErrMalformedGraph)
	}
	if err := p.Validate(g.n); err != nil {
		return nil, err
	}

	out := &Graph{n: g.n, cells: make([]uint8, len(g.cells))}
	for i := 0; i < g.n; i++ {
		for j := 0; j < g.n; j++ {
			out.cells[p[i]*g.n+p[j]] = g.cells[i*g.n+j]
		}
	}
	return out, nil
}

// NextPermutation rearranges p into its lexicographic successor and reports
// whether one existed. When p is the last permutation it is left unchanged.
func NextPermutation(p Permutation) bool {
	i := len(p) - 2
	for i >= 0 && p[i] >= p[i+1] {
		i--
	}
	if i < 0 {
		return false
	}

	j := len(p) - 1
	for p[j] <= p[i] {
		j--
	}
	p[i], p[j] = p[j], p[i]

	for l, r := i+1, len(p)-1; l < r; l, r = l+1, r-1 {
		p[l], p[r] = p[r], p[l]
	}
	return true
}
