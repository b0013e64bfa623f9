// Package session runs one GraphShake handshake over a transport.
//
// A Session plays either the Initiator or the Responder role. The Initiator
// generates a secret graph, relabels it with a private permutation and sends
// the result; the Responder relabels what it received with its own
// permutation and sends it back (followed, in verified mode, by the
// permutation itself). The Initiator then decides Verified or Rejected.
//
// Sessions are single-use and synchronous: Run blocks until the handshake
// finishes, fails or the context ends, and the transport is closed on return.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/graphshake/pkg/crypto"
	"github.com/ZentaChain/graphshake/pkg/graph"
	"github.com/ZentaChain/graphshake/pkg/log"
	"github.com/ZentaChain/graphshake/pkg/protocol"
	"github.com/ZentaChain/graphshake/pkg/verify"
)

var (
	ErrSessionFinished = errors.New("session already ran")
	ErrNilTransport    = errors.New("nil transport")
)

// Session holds the state of one handshake attempt.
type Session struct {
	id        protocol.SessionID
	role      Role
	cfg       Config
	transport protocol.Transport
	rng       graph.RandomSource
	verifier  verify.Verifier
	logger    log.Logger
	observers []Observer

	state   State
	history []State

	localGraph    *graph.Graph      // initiator's secret graph
	localPerm     graph.Permutation // this side's relabeling
	localPermuted *graph.Graph      // graph this side sent
	peerGraph     *graph.Graph      // graph received from the peer
	peerFrame     []byte            // raw graph frame received from the peer
	peerPerm      graph.Permutation // permutation disclosed by the responder

	bytesSent     int
	bytesReceived int
	result        *Result
}

// Option customizes a Session.
type Option func(*Session)

// WithRandomSource sets the source for graph and permutation generation.
func WithRandomSource(src graph.RandomSource) Option {
	return func(s *Session) { s.rng = src }
}

// WithLogger sets the session logger.
func WithLogger(l log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithObserver registers an observer for the session result.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// WithVerifier overrides the verifier chosen from the mode.
func WithVerifier(v verify.Verifier) Option {
	return func(s *Session) { s.verifier = v }
}

// WithSessionID sets the ID an initiator announces. Responders adopt the
// initiator's ID when negotiating.
func WithSessionID(id protocol.SessionID) Option {
	return func(s *Session) { s.id = id }
}

// Open binds a connected transport to a new session in the Connected state.
func Open(t protocol.Transport, role Role, cfg *Config, opts ...Option) (*Session, error) {
	if t == nil {
		return nil, ErrNilTransport
	}
	if role != RoleInitiator && role != RoleResponder {
		return nil, fmt.Errorf("%w: %v", ErrUnknownRole, role)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:        protocol.NewSessionID(),
		role:      role,
		cfg:       *cfg,
		transport: t,
		state:     StateInit,
		history:   []State{StateInit},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.rng == nil {
		seed, err := crypto.NewSeed()
		if err != nil {
			return nil, fmt.Errorf("seed random source: %w", err)
		}
		s.rng = graph.NewSeededSource(seed)
	}
	if s.verifier == nil {
		v, err := verify.New(s.cfg.Mode)
		if err != nil {
			return nil, err
		}
		s.verifier = v
	}
	if s.logger == nil {
		s.logger = log.DefaultLogger()
	}
	s.logger = s.logger.Named("session").With("role", role.String(), "mode", s.cfg.Mode.String())

	if err := s.transition(StateConnected); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session ID. A negotiating responder reports the
// initiator's ID once the Hello has been read.
func (s *Session) ID() protocol.SessionID { return s.id }

// Role returns the role this session plays.
func (s *Session) Role() Role { return s.role }

// Config returns a copy of the session configuration.
func (s *Session) Config() Config { return s.cfg }

// State returns the current state.
func (s *Session) State() State { return s.state }

// History returns every state visited so far.
func (s *Session) History() []State {
	out := make([]State, len(s.history))
	copy(out, s.history)
	return out
}

// Exchanged returns the graph this side sent and the graph it received.
// Either is nil if the session stopped before it moved.
func (s *Session) Exchanged() (sent, received *graph.Graph) {
	return s.localPermuted, s.peerGraph
}

// SecretGraph returns the initiator's unpermuted graph.
func (s *Session) SecretGraph() *graph.Graph { return s.localGraph }

// Result returns the report of a finished session, or nil.
func (s *Session) Result() *Result { return s.result }

// Run performs the handshake and closes the transport. The error is non-nil
// exactly when the outcome is OutcomeFailed; a rejected peer is not an error.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if s.result != nil || s.state != StateConnected {
		return s.result, ErrSessionFinished
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	s.logger.Debugw("handshake started", "vertices", s.cfg.VertexCount, "negotiate", s.cfg.Negotiate)

	var outcome Outcome
	var err error
	switch s.role {
	case RoleInitiator:
		outcome, err = s.runInitiator(ctx)
	default:
		outcome, err = s.runResponder(ctx)
	}
	if err != nil {
		outcome = OutcomeFailed
	}

	if closeErr := s.transport.Close(); closeErr != nil {
		s.logger.Debugw("transport close", "err", closeErr)
	}
	if tErr := s.transition(StateClosed); tErr != nil && err == nil {
		err, outcome = tErr, OutcomeFailed
	}

	s.result = s.buildResult(outcome, err, started)
	s.report()

	for _, o := range s.observers {
		o.SessionFinished(s.result)
	}
	return s.result, err
}

func (s *Session) transition(to State) error {
	if !CanTransition(s.state, to) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, s.state, to)
	}
	if s.logger != nil {
		s.logger.Debugw("state", "from", s.state.String(), "to", to.String())
	}
	s.state = to
	s.history = append(s.history, to)
	return nil
}

func (s *Session) send(ctx context.Context, frame []byte) error {
	n, err := protocol.SendFull(ctx, s.transport, frame)
	s.bytesSent += n
	return err
}

func (s *Session) receive(ctx context.Context, size int) ([]byte, error) {
	buf, err := protocol.ReceiveFull(ctx, s.transport, size)
	s.bytesReceived += len(buf)
	return buf, err
}

func (s *Session) sendHeader(ctx context.Context, h *protocol.Header) error {
	return s.send(ctx, h.Encode())
}

func (s *Session) receiveHeader(ctx context.Context, msgType uint16) (*protocol.Header, error) {
	buf, err := s.receive(ctx, protocol.HeaderSize)
	if err != nil {
		return nil, err
	}

	h := &protocol.Header{}
	if err := h.Decode(buf); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if h.Type != msgType {
		return nil, fmt.Errorf("%w: got 0x%04x, want 0x%04x", protocol.ErrUnexpectedMessage, h.Type, msgType)
	}
	return h, nil
}

func (s *Session) header(msgType uint16) *protocol.Header {
	h := protocol.NewHeader(msgType, uint16(s.cfg.Mode), s.cfg.VertexCount, s.id)
	if s.cfg.Mode.ExchangesPermutation() {
		h.SetFlag(protocol.FlagPermutationFrame)
	}
	return h
}

// checkPeerHeader compares the peer's announced parameters with ours.
func (s *Session) checkPeerHeader(h *protocol.Header) error {
	if verify.Mode(h.Mode) != s.cfg.Mode {
		return fmt.Errorf("%w: peer mode %v, local %v", ErrConfigMismatch, verify.Mode(h.Mode), s.cfg.Mode)
	}
	if int(h.VertexCount) != s.cfg.VertexCount {
		return fmt.Errorf("%w: peer vertex count %d, local %d", ErrConfigMismatch, h.VertexCount, s.cfg.VertexCount)
	}
	if h.HasFlag(protocol.FlagPermutationFrame) != s.cfg.Mode.ExchangesPermutation() {
		return fmt.Errorf("%w: permutation frame flag", ErrConfigMismatch)
	}
	return nil
}

func (s *Session) buildResult(outcome Outcome, err error, started time.Time) *Result {
	r := &Result{
		SessionID:     s.id,
		Role:          s.role,
		Mode:          s.cfg.Mode,
		VertexCount:   s.cfg.VertexCount,
		Outcome:       outcome,
		Err:           err,
		StartedAt:     started,
		Duration:      time.Since(started),
		BytesSent:     s.bytesSent,
		BytesReceived: s.bytesReceived,
		States:        s.History(),
	}
	if s.localPermuted != nil {
		r.LocalFingerprint = crypto.Fingerprint(protocol.EncodeGraph(s.localPermuted))
	}
	if s.peerFrame != nil {
		r.PeerFingerprint = crypto.Fingerprint(s.peerFrame)
	}
	return r
}

func (s *Session) report() {
	r := s.result
	fields := []interface{}{
		"session", r.SessionID.String(),
		"outcome", r.Outcome.String(),
		"duration", r.Duration,
		"sent", r.BytesSent,
		"received", r.BytesReceived,
		"states", FormatStates(r.States),
	}
	switch r.Outcome {
	case OutcomeFailed:
		s.logger.Errorw("handshake failed", append(fields, "err", r.Err)...)
	case OutcomeRejected:
		s.logger.Warnw("handshake rejected", fields...)
	default:
		s.logger.Infow("handshake finished", fields...)
	}
}
