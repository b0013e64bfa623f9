package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/graphshake/pkg/graph"
	"github.com/ZentaChain/graphshake/pkg/log/testlogger"
	"github.com/ZentaChain/graphshake/pkg/protocol"
	"github.com/ZentaChain/graphshake/pkg/verify"
)

type runResult struct {
	session *Session
	result  *Result
	err     error
}

func newTestSession(t *testing.T, conn io.ReadWriteCloser, role Role, cfg *Config, seed int64, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{
		WithLogger(testlogger.New(t)),
		WithRandomSource(graph.NewSeededSource(seed)),
	}, opts...)
	s, err := Open(protocol.NewStreamTransport(conn), role, cfg, opts...)
	require.NoError(t, err)
	require.Equal(t, StateConnected, s.State())
	return s
}

func runAsync(ctx context.Context, s *Session) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		r, err := s.Run(ctx)
		done <- runResult{session: s, result: r, err: err}
	}()
	return done
}

func TestHandshakeOverPipe(t *testing.T) {
	tests := []struct {
		name      string
		mode      verify.Mode
		negotiate bool
		responder Outcome
		received  int
	}{
		{"simple", verify.ModeSimple, false, OutcomeCompleted, 100},
		{"verified", verify.ModeVerified, false, OutcomeCompleted, 120},
		{"simple negotiated", verify.ModeSimple, true, OutcomeVerified, 100 + 32},
		{"verified negotiated", verify.ModeVerified, true, OutcomeVerified, 120 + 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{VertexCount: 5, Mode: tt.mode, Negotiate: tt.negotiate, Timeout: 5 * time.Second}
			a, b := net.Pipe()

			initiator := newTestSession(t, a, RoleInitiator, cfg, 1)
			resp := newTestSession(t, b, RoleResponder, cfg, 2)

			respDone := runAsync(context.Background(), resp)
			ir, err := initiator.Run(context.Background())
			require.NoError(t, err)
			rr := <-respDone
			require.NoError(t, rr.err)

			assert.Equal(t, OutcomeVerified, ir.Outcome)
			assert.Equal(t, tt.responder, rr.result.Outcome)
			assert.Equal(t, StateClosed, initiator.State())
			assert.Equal(t, StateClosed, resp.State())
			assert.Equal(t, tt.received, ir.BytesReceived)
			assert.Equal(t, ir.BytesSent, rr.result.BytesReceived)
			assert.Equal(t, ir.BytesReceived, rr.result.BytesSent)

			// each side saw exactly what the other sent
			iSent, iRecv := initiator.Exchanged()
			rSent, rRecv := resp.Exchanged()
			assert.True(t, iSent.Equal(rRecv))
			assert.True(t, rSent.Equal(iRecv))
			assert.Equal(t, ir.LocalFingerprint, rr.result.PeerFingerprint)
			assert.Equal(t, ir.PeerFingerprint, rr.result.LocalFingerprint)

			assert.Equal(t, []State{StateInit, StateConnected, StateGraphSent, StateAwaitingPeerGraph, StateVerified, StateClosed}, ir.States)
			if tt.negotiate {
				assert.Equal(t, initiator.ID(), resp.ID())
				assert.Equal(t, StateVerified, rr.result.States[len(rr.result.States)-2])
			} else {
				assert.Equal(t, []State{StateInit, StateConnected, StateAwaitingPeerGraph, StateGraphSent, StateClosed}, rr.result.States)
			}
		})
	}
}

func TestResponderRelabelsScenarioGraph(t *testing.T) {
	g, err := graph.FromRows([][]uint8{{0, 1, 0}, {1, 0, 1}, {0, 1, 0}})
	require.NoError(t, err)
	ps := graph.Permutation{2, 0, 1}
	gs, err := graph.Apply(g, ps)
	require.NoError(t, err)

	a, b := net.Pipe()
	resp := newTestSession(t, b, RoleResponder, &Config{VertexCount: 3, Mode: verify.ModeVerified, Timeout: 5 * time.Second}, 7)
	done := runAsync(context.Background(), resp)

	peer := protocol.NewStreamTransport(a)
	ctx := context.Background()
	_, err = protocol.SendFull(ctx, peer, protocol.EncodeGraph(gs))
	require.NoError(t, err)

	frame, err := protocol.ReceiveFull(ctx, peer, protocol.GraphFrameSize(3))
	require.NoError(t, err)
	gsc, err := protocol.DecodeGraph(frame, 3)
	require.NoError(t, err)
	frame, err = protocol.ReceiveFull(ctx, peer, protocol.PermutationFrameSize(3))
	require.NoError(t, err)
	pc, err := protocol.DecodePermutation(frame, 3)
	require.NoError(t, err)

	rr := <-done
	require.NoError(t, rr.err)
	assert.Equal(t, OutcomeCompleted, rr.result.Outcome)

	expected, err := graph.Apply(gs, pc)
	require.NoError(t, err)
	assert.True(t, expected.Equal(gsc))

	ok, err := verify.Algebraic(&verify.Evidence{
		OwnSecret:       g,
		OwnPermutation:  ps,
		OwnPermuted:     gs,
		PeerPermutation: pc,
		PeerResult:      gsc,
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

// tamperingPeer relabels the initiator's graph honestly, lets tamper edit
// the encoded reply, then sends it with the true permutation.
func tamperingPeer(t *testing.T, conn net.Conn, cfg *Config, tamper func(frame []byte)) <-chan *protocol.Header {
	n := cfg.VertexCount
	verdicts := make(chan *protocol.Header, 1)
	go func() {
		defer close(verdicts)
		ctx := context.Background()
		peer := protocol.NewStreamTransport(conn)
		defer peer.Close()

		if cfg.Negotiate {
			hello, err := protocol.ExpectHeader(ctx, peer, protocol.MsgTypeHello)
			if err != nil {
				return
			}
			ack := protocol.NewHeader(protocol.MsgTypeHelloAck, hello.Mode, n, hello.SessionID)
			ack.Flags = hello.Flags
			if protocol.WriteHeader(ctx, peer, ack) != nil {
				return
			}
		}

		frame, err := protocol.ReceiveFull(ctx, peer, protocol.GraphFrameSize(n))
		if err != nil {
			return
		}
		gs, err := protocol.DecodeGraph(frame, n)
		if err != nil {
			return
		}
		pc := graph.Identity(n)
		pc[0], pc[1] = pc[1], pc[0]
		gsc, err := graph.Apply(gs, pc)
		if err != nil {
			return
		}

		reply := protocol.EncodeGraph(gsc)
		tamper(reply)
		if _, err := protocol.SendFull(ctx, peer, reply); err != nil {
			return
		}
		if cfg.Mode.ExchangesPermutation() {
			if _, err := protocol.SendFull(ctx, peer, protocol.EncodePermutation(pc)); err != nil {
				return
			}
		}
		if cfg.Negotiate {
			if v, err := protocol.ExpectHeader(ctx, peer, protocol.MsgTypeVerdict); err == nil {
				verdicts <- v
			}
		}
	}()
	return verdicts
}

// flipCell toggles the low bit of cell (i, j) only, leaving its mirror.
func flipCell(n, i, j int) func(frame []byte) {
	return func(frame []byte) {
		frame[(i*n+j)*protocol.ElementSize+protocol.ElementSize-1] ^= 1
	}
}

// flipEdge toggles cell (i, j) and its mirror, keeping a valid graph.
func flipEdge(n, i, j int) func(frame []byte) {
	return func(frame []byte) {
		flipCell(n, i, j)(frame)
		flipCell(n, j, i)(frame)
	}
}

func TestInitiatorRejectsTamperedResponse(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(n int) func([]byte)
	}{
		{"one bit", func(n int) func([]byte) { return flipCell(n, 0, 2) }},
		{"diagonal bit", func(n int) func([]byte) { return flipCell(n, 1, 1) }},
		{"mirrored edge", func(n int) func([]byte) { return flipEdge(n, 0, 2) }},
	}

	for _, tt := range tests {
		for _, mode := range []verify.Mode{verify.ModeSimple, verify.ModeVerified} {
			for _, negotiate := range []bool{false, true} {
				name := fmt.Sprintf("%s/%v/negotiate=%v", tt.name, mode, negotiate)
				t.Run(name, func(t *testing.T) {
					a, b := net.Pipe()
					cfg := &Config{VertexCount: 3, Mode: mode, Negotiate: negotiate, Timeout: 5 * time.Second}
					initiator := newTestSession(t, a, RoleInitiator, cfg, 3)
					verdicts := tamperingPeer(t, b, cfg, tt.tamper(3))

					r, err := initiator.Run(context.Background())
					require.NoError(t, err, "a rejection is not an error")
					assert.Equal(t, OutcomeRejected, r.Outcome)
					assert.Contains(t, r.States, StateRejected)
					assert.NotContains(t, r.States, StateVerified)
					assert.NotEmpty(t, r.PeerFingerprint)

					if negotiate {
						v, ok := <-verdicts
						require.True(t, ok)
						assert.False(t, v.HasFlag(protocol.FlagAccepted))
						assert.Equal(t, initiator.ID(), v.SessionID)
					}
				})
			}
		}
	}
}

func TestInitiatorFailsOnOutOfRangeCell(t *testing.T) {
	a, b := net.Pipe()
	cfg := &Config{VertexCount: 3, Mode: verify.ModeVerified, Timeout: 5 * time.Second}
	initiator := newTestSession(t, a, RoleInitiator, cfg, 3)
	tamperingPeer(t, b, cfg, func(frame []byte) { frame[0] ^= 0x80 })

	r, err := initiator.Run(context.Background())
	require.ErrorIs(t, err, protocol.ErrElementRange)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.NotContains(t, r.States, StateRejected)
}

// halfFrameTransport accepts every write and delivers a fixed byte count
// before reporting the stream closed.
type halfFrameTransport struct {
	incoming []byte
	closed   bool
}

func (h *halfFrameTransport) Send(b []byte) (int, error) { return len(b), nil }

func (h *halfFrameTransport) Receive(max int) ([]byte, error) {
	if len(h.incoming) == 0 {
		return nil, io.EOF
	}
	n := min(max, len(h.incoming))
	out := h.incoming[:n]
	h.incoming = h.incoming[n:]
	return out, nil
}

func (h *halfFrameTransport) Close() error {
	h.closed = true
	return nil
}

type spyVerifier struct {
	calls int
}

func (s *spyVerifier) Mode() verify.Mode { return verify.ModeSimple }

func (s *spyVerifier) Verify(*verify.Evidence) (bool, error) {
	s.calls++
	return true, nil
}

func TestHalfFrameAbortsBeforeVerification(t *testing.T) {
	tr := &halfFrameTransport{incoming: make([]byte, 50)}
	spy := &spyVerifier{}
	observed := 0

	s, err := Open(tr, RoleInitiator, &Config{VertexCount: 5, Mode: verify.ModeSimple},
		WithLogger(testlogger.New(t)),
		WithRandomSource(graph.NewSeededSource(1)),
		WithVerifier(spy),
		WithObserver(ObserverFunc(func(r *Result) { observed++ })),
	)
	require.NoError(t, err)

	r, err := s.Run(context.Background())
	require.Error(t, err)

	var incomplete *protocol.IncompleteTransferError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, 100, incomplete.Expected)
	assert.Equal(t, 50, incomplete.Actual)
	assert.Nil(t, incomplete.Err)

	assert.Zero(t, spy.calls)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, err, r.Err)
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, tr.closed)
	assert.Equal(t, 1, observed)
}

func TestNegotiationMismatch(t *testing.T) {
	a, b := net.Pipe()
	initiator := newTestSession(t, a, RoleInitiator, &Config{VertexCount: 5, Mode: verify.ModeVerified, Negotiate: true, Timeout: 5 * time.Second}, 1)
	resp := newTestSession(t, b, RoleResponder, &Config{VertexCount: 4, Mode: verify.ModeVerified, Negotiate: true, Timeout: 5 * time.Second}, 2)

	respDone := runAsync(context.Background(), resp)
	ir, ierr := initiator.Run(context.Background())
	rr := <-respDone

	require.ErrorIs(t, rr.err, ErrConfigMismatch)
	assert.Equal(t, OutcomeFailed, rr.result.Outcome)

	// the responder hung up before acknowledging
	var incomplete *protocol.IncompleteTransferError
	require.True(t, errors.As(ierr, &incomplete))
	assert.Equal(t, OutcomeFailed, ir.Outcome)
	assert.NotContains(t, ir.States, StateGraphSent)
}

func TestHandshakeTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	// read the graph and never answer
	go func() {
		buf := make([]byte, protocol.GraphFrameSize(5))
		_, _ = io.ReadFull(b, buf)
	}()

	initiator := newTestSession(t, a, RoleInitiator, &Config{VertexCount: 5, Mode: verify.ModeSimple, Timeout: 50 * time.Millisecond}, 1)
	r, err := initiator.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, StateClosed, initiator.State())
}

func TestRunTwice(t *testing.T) {
	tr := &halfFrameTransport{}
	s, err := Open(tr, RoleResponder, nil, WithLogger(testlogger.New(t)))
	require.NoError(t, err)

	first, err := s.Run(context.Background())
	require.Error(t, err)

	again, err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrSessionFinished)
	assert.Same(t, first, again)
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(nil, RoleInitiator, nil)
	assert.ErrorIs(t, err, ErrNilTransport)

	_, err = Open(&halfFrameTransport{}, Role(9), nil)
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = Open(&halfFrameTransport{}, RoleInitiator, &Config{VertexCount: 0, Mode: verify.ModeSimple})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Open(&halfFrameTransport{}, RoleInitiator, &Config{VertexCount: 5, Mode: verify.Mode(7)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateInit, StateConnected, true},
		{StateInit, StateGraphSent, false},
		{StateConnected, StateGraphSent, true},
		{StateConnected, StateAwaitingPeerGraph, true},
		{StateConnected, StateVerified, false},
		{StateGraphSent, StateAwaitingPeerGraph, true},
		{StateAwaitingPeerGraph, StateGraphSent, true},
		{StateAwaitingPeerGraph, StateRejected, true},
		{StateVerified, StateRejected, false},
		{StateRejected, StateVerified, false},
		{StateVerified, StateClosed, true},
		{StateClosed, StateInit, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%v -> %v", tt.from, tt.to)
	}

	for s := StateInit; s < StateClosed; s++ {
		assert.True(t, CanTransition(s, StateClosed), "%v -> CLOSED", s)
	}
	assert.Equal(t, "INIT>CONNECTED>CLOSED", FormatStates([]State{StateInit, StateConnected, StateClosed}))
}
