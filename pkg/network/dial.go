package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ZentaChain/graphshake/pkg/log"
	"github.com/ZentaChain/graphshake/pkg/protocol"
)

// Dialer opens a transport to a peer address.
type Dialer interface {
	Dial(ctx context.Context, addr string) (*Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addr string) (*Conn, error)

func (f DialerFunc) Dial(ctx context.Context, addr string) (*Conn, error) { return f(ctx, addr) }

// DialTCP connects to a TCP responder.
func DialTCP(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &Conn{
		Transport: protocol.NewStreamTransport(conn),
		Remote:    conn.RemoteAddr().String(),
	}, nil
}

// RetryPolicy bounds DialWithRetry.
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultRetryPolicy tries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: time.Second, MaxBackoff: 30 * time.Second}
}

// DialWithRetry dials until it succeeds, the attempts run out or ctx ends,
// doubling the backoff after each failure.
func DialWithRetry(ctx context.Context, d Dialer, addr string, p RetryPolicy, logger log.Logger) (*Conn, error) {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}

	backoff := p.Backoff
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		c, err := d.Dial(ctx, addr)
		if err == nil {
			if attempt > 1 {
				logger.Infow("connected after retry", "addr", addr, "attempt", attempt)
			}
			return c, nil
		}
		lastErr = err
		if attempt == p.Attempts {
			break
		}

		logger.Warnw("dial failed, retrying", "addr", addr, "attempt", attempt, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", addr, ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return nil, fmt.Errorf("dial %s after %d attempts: %w", addr, p.Attempts, lastErr)
}
