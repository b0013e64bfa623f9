// Package network carries handshake sessions over TCP or libp2p streams.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZentaChain/graphshake/pkg/log"
	"github.com/ZentaChain/graphshake/pkg/protocol"
)

var (
	ErrServerClosed   = errors.New("server closed")
	ErrAlreadyStarted = errors.New("server already started")
)

// Conn is an accepted peer connection ready for a session.
type Conn struct {
	Transport protocol.Transport
	Remote    string
}

// Listener yields peer connections one at a time.
type Listener interface {
	Accept(ctx context.Context) (*Conn, error)
	Addr() string
	Close() error
}

// Handler runs one handshake on an accepted connection. It owns the
// transport and must close it.
type Handler func(ctx context.Context, c *Conn)

// Server accepts connections and hands each one to its Handler on the
// accepting goroutine, so handshakes never overlap.
type Server struct {
	listener Listener
	handler  Handler
	logger   log.Logger

	mu        sync.Mutex
	started   bool
	closed    bool
	startTime time.Time

	handled atomic.Uint64
}

// NewServer creates a server over l.
func NewServer(l Listener, h Handler, logger log.Logger) *Server {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Server{
		listener: l,
		handler:  h,
		logger:   logger.Named("server"),
	}
}

// Serve accepts until ctx ends or Close is called. It returns nil on a
// clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.started = true
	s.startTime = time.Now()
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	s.logger.Infow("listening", "addr", s.listener.Addr())

	for {
		c, err := s.listener.Accept(ctx)
		if err != nil {
			if s.isClosed() || ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warnw("accept timeout", "err", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.logger.Debugw("new connection", "remote", c.Remote)
		s.handler(ctx, c)
		s.handled.Add(1)
	}
}

// Close stops accepting. A handshake in progress runs to completion or to
// its own timeout.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.listener.Close()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Addr returns the listening address.
func (s *Server) Addr() string { return s.listener.Addr() }

// Handled returns the number of connections served.
func (s *Server) Handled() uint64 { return s.handled.Load() }

// Uptime returns the time since Serve started.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// TCPListener accepts plain TCP connections.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP listens on addr ("host:port").
func ListenTCP(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

// Accept waits for the next connection.
func (l *TCPListener) Accept(ctx context.Context) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return &Conn{
		Transport: protocol.NewStreamTransport(conn),
		Remote:    conn.RemoteAddr().String(),
	}, nil
}

func (l *TCPListener) Addr() string { return l.ln.Addr().String() }

func (l *TCPListener) Close() error { return l.ln.Close() }
