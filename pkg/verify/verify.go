// Package verify decides whether a peer's returned graph is a relabeling of
// the graph it was sent.
//
// Two strategies decide the same relation at different trust and cost
// levels: BruteForce searches every relabeling (O(N!·N²)) and needs nothing
// but the two graphs; Algebraic uses the permutation the peer declared
// (O(N²)) and additionally proves the peer relabeled the exact graph it
// received.
package verify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZentaChain/graphshake/pkg/graph"
)

var (
	ErrUnknownMode        = errors.New("unknown verification mode")
	ErrIncompleteEvidence = errors.New("incomplete verification evidence")
	ErrInconsistentState  = errors.New("own permuted graph does not match own secret and permutation")
)

// Mode selects the verification strategy and, with it, the exchange variant.
type Mode uint16

const (
	// ModeSimple exchanges graphs only and verifies by brute-force search.
	ModeSimple Mode = 1
	// ModeVerified also exchanges the responder's permutation and verifies algebraically.
	ModeVerified Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeSimple:
		return "simple"
	case ModeVerified:
		return "verified"
	default:
		return fmt.Sprintf("mode(%d)", uint16(m))
	}
}

// Valid reports whether m names a known strategy.
func (m Mode) Valid() bool {
	return m == ModeSimple || m == ModeVerified
}

// ExchangesPermutation reports whether the responder discloses its permutation in this mode.
func (m Mode) ExchangesPermutation() bool {
	return m == ModeVerified
}

// ParseMode accepts the mode names and the strategy names.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple", "bruteforce", "brute-force":
		return ModeSimple, nil
	case "verified", "algebraic":
		return ModeVerified, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Evidence is what the initiator holds once the exchange completes.
type Evidence struct {
	OwnSecret       *graph.Graph
	OwnPermutation  graph.Permutation
	OwnPermuted     *graph.Graph // Apply(OwnSecret, OwnPermutation), as sent to the peer
	PeerPermutation graph.Permutation
	PeerResult      *graph.Graph // graph returned by the peer
}

// Verifier decides a session outcome from its evidence.
type Verifier interface {
	Mode() Mode
	Verify(ev *Evidence) (bool, error)
}

// New returns the verifier for mode.
func New(mode Mode) (Verifier, error) {
	switch mode {
	case ModeSimple:
		return BruteForceVerifier{}, nil
	case ModeVerified:
		return AlgebraicVerifier{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, uint16(mode))
	}
}

// BruteForceVerifier checks isomorphism between the sent and returned graphs.
type BruteForceVerifier struct{}

func (BruteForceVerifier) Mode() Mode { return ModeSimple }

func (BruteForceVerifier) Verify(ev *Evidence) (bool, error) {
	if ev == nil || ev.OwnPermuted == nil || ev.PeerResult == nil {
		return false, ErrIncompleteEvidence
	}
	return BruteForce(ev.OwnPermuted, ev.PeerResult), nil
}

// AlgebraicVerifier checks the returned graph against the declared permutation.
type AlgebraicVerifier struct{}

func (AlgebraicVerifier) Mode() Mode { return ModeVerified }

func (AlgebraicVerifier) Verify(ev *Evidence) (bool, error) {
	return Algebraic(ev)
}
