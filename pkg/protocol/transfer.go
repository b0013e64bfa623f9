package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Transport is the blocking byte stream a session runs over.
type Transport interface {
	// Send writes some prefix of b and reports how many bytes were written.
	Send(b []byte) (int, error)

	// Receive reads at most max bytes. Data may be returned together with an
	// error; io.EOF signals an orderly close by the peer.
	Receive(max int) ([]byte, error)

	Close() error
}

// Deadliner is implemented by transports that can bound blocking I/O.
type Deadliner interface {
	SetDeadline(t time.Time) error
}

// TransportError is an underlying send/receive failure, surfaced unchanged.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IncompleteTransferError reports a frame that stopped moving before its
// expected byte count. Err is nil when the peer closed the stream and a
// *TransportError otherwise.
type IncompleteTransferError struct {
	Op       string // "send" or "receive"
	Expected int
	Actual   int
	Err      error
}

func (e *IncompleteTransferError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("incomplete %s: moved %d of %d bytes, stream closed", e.Op, e.Actual, e.Expected)
	}
	return fmt.Sprintf("incomplete %s: moved %d of %d bytes: %v", e.Op, e.Actual, e.Expected, e.Err)
}

func (e *IncompleteTransferError) Unwrap() error {
	return e.Err
}

// SendFull writes all of b, looping over short writes.
func SendFull(ctx context.Context, t Transport, b []byte) (int, error) {
	stop := watchContext(ctx, t)
	defer stop()

	sent := 0
	for sent < len(b) {
		if err := ctx.Err(); err != nil {
			return sent, incomplete("send", len(b), sent, err)
		}

		n, err := t.Send(b[sent:])
		sent += n
		if err != nil {
			return sent, incomplete("send", len(b), sent, contextCause(ctx, err))
		}
		if n == 0 {
			return sent, incomplete("send", len(b), sent, io.ErrClosedPipe)
		}
	}
	return sent, nil
}

// ReceiveFull reads exactly n bytes, looping over short reads.
func ReceiveFull(ctx context.Context, t Transport, n int) ([]byte, error) {
	stop := watchContext(ctx, t)
	defer stop()

	buf := make([]byte, 0, n)
	for len(buf) < n {
		if err := ctx.Err(); err != nil {
			return buf, incomplete("receive", n, len(buf), err)
		}

		chunk, err := t.Receive(n - len(buf))
		if len(chunk) > n-len(buf) {
			chunk = chunk[:n-len(buf)]
		}
		buf = append(buf, chunk...)

		if len(buf) == n {
			break
		}
		if err != nil {
			return buf, incomplete("receive", n, len(buf), contextCause(ctx, err))
		}
		if len(chunk) == 0 {
			return buf, incomplete("receive", n, len(buf), io.EOF)
		}
	}
	return buf, nil
}

func incomplete(op string, expected, actual int, err error) error {
	e := &IncompleteTransferError{Op: op, Expected: expected, Actual: actual}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
		e.Err = &TransportError{Op: op, Err: err}
	}
	return e
}

// contextCause prefers the context error when a deadline set from ctx is
// what interrupted the I/O.
func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		// the transport deadline can fire just before the context timer
		return fmt.Errorf("%w (%v)", context.DeadlineExceeded, err)
	}
	return err
}

var aLongTimeAgo = time.Unix(1, 0)

// watchContext maps the context deadline and cancellation onto the
// transport's I/O deadline. The returned func must be called when the
// transfer is over.
func watchContext(ctx context.Context, t Transport) func() {
	d, ok := t.(Deadliner)
	if !ok || ctx.Done() == nil {
		return func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		_ = d.SetDeadline(deadline)
	}
	stopAfter := context.AfterFunc(ctx, func() {
		_ = d.SetDeadline(aLongTimeAgo)
	})

	return func() {
		if stopAfter() && hasDeadline {
			_ = d.SetDeadline(time.Time{})
		}
	}
}
