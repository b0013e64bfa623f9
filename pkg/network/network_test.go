package network

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/graphshake/pkg/graph"
	"github.com/ZentaChain/graphshake/pkg/log/testlogger"
	"github.com/ZentaChain/graphshake/pkg/session"
	"github.com/ZentaChain/graphshake/pkg/verify"
)

func testConfig() *session.Config {
	return &session.Config{VertexCount: 5, Mode: verify.ModeVerified, Negotiate: true, Timeout: 10 * time.Second}
}

// responderHandler runs a responder session per connection and reports
// each result.
func responderHandler(t *testing.T, results chan<- *session.Result) Handler {
	return func(ctx context.Context, c *Conn) {
		s, err := session.Open(c.Transport, session.RoleResponder, testConfig(),
			session.WithLogger(testlogger.New(t)),
			session.WithRandomSource(graph.NewSeededSource(11)))
		if err != nil {
			_ = c.Transport.Close()
			return
		}
		r, _ := s.Run(ctx)
		results <- r
	}
}

func runInitiator(t *testing.T, c *Conn) *session.Result {
	t.Helper()
	s, err := session.Open(c.Transport, session.RoleInitiator, testConfig(),
		session.WithLogger(testlogger.New(t)),
		session.WithRandomSource(graph.NewSeededSource(12)))
	require.NoError(t, err)
	r, err := s.Run(context.Background())
	require.NoError(t, err)
	return r
}

func TestTCPServerServesSequentially(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)

	results := make(chan *session.Result, 2)
	srv := NewServer(ln, responderHandler(t, results), testlogger.New(t))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	for i := 0; i < 2; i++ {
		c, err := DialTCP(context.Background(), srv.Addr())
		require.NoError(t, err)
		r := runInitiator(t, c)
		assert.Equal(t, session.OutcomeVerified, r.Outcome)

		rr := <-results
		assert.Equal(t, session.OutcomeVerified, rr.Outcome)
		assert.Equal(t, r.SessionID, rr.SessionID)
	}

	cancel()
	require.NoError(t, <-served)
	assert.EqualValues(t, 2, srv.Handled())
	assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyStarted)
}

func TestServeAfterClose(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(ln, func(context.Context, *Conn) {}, testlogger.New(t))
	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.Serve(context.Background()), ErrServerClosed)
	assert.Zero(t, srv.Uptime())
}

func TestDialTCPRefused(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr()
	require.NoError(t, ln.Close())

	_, err = DialTCP(context.Background(), addr)
	assert.Error(t, err)
}

func TestDialWithRetry(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	flaky := DialerFunc(func(ctx context.Context, addr string) (*Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return &Conn{Remote: addr}, nil
	})

	c, err := DialWithRetry(context.Background(), flaky, "peer:1", RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, testlogger.New(t))
	require.NoError(t, err)
	assert.Equal(t, "peer:1", c.Remote)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = DialWithRetry(context.Background(), flaky, "peer:1", RetryPolicy{Attempts: 2, Backoff: time.Millisecond}, testlogger.New(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestDialWithRetryCanceled(t *testing.T) {
	failing := DialerFunc(func(context.Context, string) (*Conn, error) {
		return nil, errors.New("unreachable")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DialWithRetry(ctx, failing, "peer:1", RetryPolicy{Attempts: 5, Backoff: time.Hour}, testlogger.New(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestP2PHandshake(t *testing.T) {
	if testing.Short() {
		t.Skip("libp2p hosts in short mode")
	}

	responder, err := NewP2PHost(&P2PConfig{ListenHost: "127.0.0.1"}, testlogger.New(t))
	require.NoError(t, err)
	initiator, err := NewP2PHost(&P2PConfig{ListenHost: "127.0.0.1"}, testlogger.New(t))
	require.NoError(t, err)
	defer initiator.Close()

	addr := responder.Addr()
	require.True(t, strings.Contains(addr, "/p2p/"+responder.ID().String()), addr)

	results := make(chan *session.Result, 1)
	srv := NewServer(responder, responderHandler(t, results), testlogger.New(t))
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dialCancel()
	c, err := initiator.Dial(dialCtx, addr)
	require.NoError(t, err)

	r := runInitiator(t, c)
	assert.Equal(t, session.OutcomeVerified, r.Outcome)
	assert.Equal(t, session.OutcomeVerified, (<-results).Outcome)

	cancel()
	require.NoError(t, <-served)

	_, err = responder.Accept(context.Background())
	assert.ErrorIs(t, err, ErrServerClosed)
}

func TestP2PDialInvalidAddress(t *testing.T) {
	h, err := NewP2PHost(&P2PConfig{ListenHost: "127.0.0.1"}, testlogger.New(t))
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Dial(context.Background(), "not-a-multiaddr")
	assert.Error(t, err)

	_, err = h.Dial(context.Background(), "/ip4/127.0.0.1/tcp/1")
	assert.Error(t, err)
}
