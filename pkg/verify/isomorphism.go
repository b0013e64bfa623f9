package verify

import (
	"fmt"
	"slices"

	"github.com/ZentaChain/graphshake/pkg/graph"
)

// BruteForce reports whether some relabeling of g1 equals g2, trying every
// permutation of [0,N) in lexicographic order.
func BruteForce(g1, g2 *graph.Graph) bool {
	if g1 == nil || g2 == nil || g1.Size() != g2.Size() {
		return false
	}
	// relabeling preserves the edge count and the degree sequence
	if g1.EdgeCount() != g2.EdgeCount() || !sameDegrees(g1, g2) {
		return false
	}

	p := graph.Identity(g1.Size())
	for {
		candidate, err := graph.Apply(g1, p)
		if err == nil && candidate.Equal(g2) {
			return true
		}
		if !graph.NextPermutation(p) {
			return false
		}
	}
}

// Algebraic accepts iff the peer applied PeerPermutation to exactly
// OwnPermuted. It undoes the peer's relabeling, then its own, and compares
// the recovered graph with OwnSecret.
func Algebraic(ev *Evidence) (bool, error) {
	if ev == nil || ev.OwnSecret == nil || ev.OwnPermuted == nil || ev.PeerResult == nil ||
		ev.OwnPermutation == nil || ev.PeerPermutation == nil {
		return false, ErrIncompleteEvidence
	}

	sent, err := graph.Apply(ev.OwnSecret, ev.OwnPermutation)
	if err != nil {
		return false, fmt.Errorf("own permutation: %w", err)
	}
	if !sent.Equal(ev.OwnPermuted) {
		return false, ErrInconsistentState
	}

	if ev.PeerResult.Size() != ev.OwnPermuted.Size() {
		return false, nil
	}
	if err := ev.PeerPermutation.Validate(ev.PeerResult.Size()); err != nil {
		return false, fmt.Errorf("peer permutation: %w", err)
	}

	undo := ev.PeerPermutation.Invert().Compose(ev.OwnPermutation.Invert())
	recovered, err := graph.Apply(ev.PeerResult, undo)
	if err != nil {
		return false, fmt.Errorf("undo relabeling: %w", err)
	}

	return recovered.Equal(ev.OwnSecret), nil
}

func sameDegrees(g1, g2 *graph.Graph) bool {
	d1, d2 := g1.Degrees(), g2.Degrees()
	slices.Sort(d1)
	slices.Sort(d2)
	return slices.Equal(d1, d2)
}
