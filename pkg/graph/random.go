package graph

import (
	"fmt"
	"math/rand"
)

// RandomSource is the randomness consumed by Generate and RandomPermutation.
// *math/rand.Rand satisfies it.
type RandomSource interface {
	// Intn returns a uniform value in [0, n). It panics if n <= 0.
	Intn(n int) int
}

// NewSeededSource returns a deterministic source for the given seed.
func NewSeededSource(seed int64) RandomSource {
	return rand.New(rand.NewSource(seed))
}

// Generate returns a random graph on n vertices. Each unordered pair (i, j)
// is an edge with probability 1/2.
func Generate(n int, src RandomSource) (*Graph, error) {
	g, err := New(n)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("generate graph: nil random source")
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := uint8(src.Intn(2))
			g.set(i, j, v)
			g.set(j, i, v)
		}
	}
	return g, nil
}
