package session

import (
	"context"
	"fmt"

	"github.com/ZentaChain/graphshake/pkg/graph"
	"github.com/ZentaChain/graphshake/pkg/protocol"
)

func (s *Session) runResponder(ctx context.Context) (Outcome, error) {
	n := s.cfg.VertexCount

	if s.cfg.Negotiate {
		hello, err := s.receiveHeader(ctx, protocol.MsgTypeHello)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("await hello: %w", err)
		}
		s.id = hello.SessionID
		if err := s.checkPeerHeader(hello); err != nil {
			return OutcomeFailed, err
		}
		if err := s.sendHeader(ctx, s.header(protocol.MsgTypeHelloAck)); err != nil {
			return OutcomeFailed, fmt.Errorf("send hello ack: %w", err)
		}
	}

	if err := s.transition(StateAwaitingPeerGraph); err != nil {
		return OutcomeFailed, err
	}
	frame, err := s.receive(ctx, protocol.GraphFrameSize(n))
	if err != nil {
		return OutcomeFailed, fmt.Errorf("receive peer graph: %w", err)
	}
	s.peerFrame = frame
	peerGraph, err := protocol.DecodeGraph(frame, n)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("decode peer graph: %w", err)
	}
	s.peerGraph = peerGraph

	perm, err := graph.RandomPermutation(n, s.rng)
	if err != nil {
		return OutcomeFailed, err
	}
	permuted, err := graph.Apply(peerGraph, perm)
	if err != nil {
		return OutcomeFailed, err
	}
	s.localPerm, s.localPermuted = perm, permuted

	if err := s.send(ctx, protocol.EncodeGraph(permuted)); err != nil {
		return OutcomeFailed, fmt.Errorf("send graph: %w", err)
	}
	if s.cfg.Mode.ExchangesPermutation() {
		if err := s.send(ctx, protocol.EncodePermutation(perm)); err != nil {
			return OutcomeFailed, fmt.Errorf("send permutation: %w", err)
		}
	}
	if err := s.transition(StateGraphSent); err != nil {
		return OutcomeFailed, err
	}

	if !s.cfg.Negotiate {
		return OutcomeCompleted, nil
	}

	verdict, err := s.receiveHeader(ctx, protocol.MsgTypeVerdict)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("await verdict: %w", err)
	}
	if verdict.SessionID != s.id {
		return OutcomeFailed, fmt.Errorf("%w: verdict for session %v", ErrConfigMismatch, verdict.SessionID)
	}

	if verdict.HasFlag(protocol.FlagAccepted) {
		if err := s.transition(StateVerified); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeVerified, nil
	}
	if err := s.transition(StateRejected); err != nil {
		return OutcomeFailed, err
	}
	s.logger.Warnw("peer rejected our relabeling, data transfer aborted")
	return OutcomeRejected, nil
}
