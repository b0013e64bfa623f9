package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZentaChain/graphshake/pkg/graph"
	"github.com/ZentaChain/graphshake/pkg/protocol"
	"github.com/ZentaChain/graphshake/pkg/verify"
)

func (s *Session) runInitiator(ctx context.Context) (Outcome, error) {
	n := s.cfg.VertexCount

	if s.cfg.Negotiate {
		if err := s.sendHeader(ctx, s.header(protocol.MsgTypeHello)); err != nil {
			return OutcomeFailed, fmt.Errorf("send hello: %w", err)
		}
		ack, err := s.receiveHeader(ctx, protocol.MsgTypeHelloAck)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("await hello ack: %w", err)
		}
		if ack.SessionID != s.id {
			return OutcomeFailed, fmt.Errorf("%w: ack for session %v", ErrConfigMismatch, ack.SessionID)
		}
		if err := s.checkPeerHeader(ack); err != nil {
			return OutcomeFailed, err
		}
	}

	secret, err := graph.Generate(n, s.rng)
	if err != nil {
		return OutcomeFailed, err
	}
	perm, err := graph.RandomPermutation(n, s.rng)
	if err != nil {
		return OutcomeFailed, err
	}
	permuted, err := graph.Apply(secret, perm)
	if err != nil {
		return OutcomeFailed, err
	}
	s.localGraph, s.localPerm, s.localPermuted = secret, perm, permuted

	if err := s.send(ctx, protocol.EncodeGraph(permuted)); err != nil {
		return OutcomeFailed, fmt.Errorf("send graph: %w", err)
	}
	if err := s.transition(StateGraphSent); err != nil {
		return OutcomeFailed, err
	}

	if err := s.transition(StateAwaitingPeerGraph); err != nil {
		return OutcomeFailed, err
	}
	frame, err := s.receive(ctx, protocol.GraphFrameSize(n))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("receive peer graph: %w", err)
	}
	s.peerFrame = frame
	// A binary matrix that is asymmetric or has a self-loop is a wrong
	// answer, not a broken frame: no relabeling of a graph produces it.
	peerGraph, err := protocol.DecodeGraph(frame, n)
	mismatch := false
	if err != nil {
		if !notRelabeling(err) {
			return OutcomeFailed, fmt.Errorf("decode peer graph: %w", err)
		}
		s.logger.Warnw("peer graph is not a relabeling", "err", err)
		mismatch = true
	}
	s.peerGraph = peerGraph

	if s.cfg.Mode.ExchangesPermutation() {
		frame, err := s.receive(ctx, protocol.PermutationFrameSize(n))
		if err != nil {
			return OutcomeFailed, fmt.Errorf("receive peer permutation: %w", err)
		}
		peerPerm, err := protocol.DecodePermutation(frame, n)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("decode peer permutation: %w", err)
		}
		s.peerPerm = peerPerm
	}

	ok := false
	if !mismatch {
		ok, err = s.verifier.Verify(&verify.Evidence{
			OwnSecret:       s.localGraph,
			OwnPermutation:  s.localPerm,
			OwnPermuted:     s.localPermuted,
			PeerPermutation: s.peerPerm,
			PeerResult:      s.peerGraph,
		})
		if err != nil {
			return OutcomeFailed, fmt.Errorf("verify: %w", err)
		}
	}

	outcome, decision := OutcomeRejected, StateRejected
	if ok {
		outcome, decision = OutcomeVerified, StateVerified
	}
	if err := s.transition(decision); err != nil {
		return OutcomeFailed, err
	}

	if s.cfg.Negotiate {
		verdict := s.header(protocol.MsgTypeVerdict)
		if ok {
			verdict.SetFlag(protocol.FlagAccepted)
		}
		// the decision stands even if the peer cannot be told
		if err := s.sendHeader(ctx, verdict); err != nil {
			s.logger.Warnw("verdict not delivered", "err", err)
		}
	}

	return outcome, nil
}

func notRelabeling(err error) bool {
	return errors.Is(err, graph.ErrMalformedGraph) && !errors.Is(err, protocol.ErrElementRange)
}
