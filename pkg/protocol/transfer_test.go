package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ZentaChain/graphshake/pkg/graph"
)

// chunkedTransport moves at most chunk bytes per call and stops after limit
// bytes in each direction, returning failure (io.EOF when nil).
type chunkedTransport struct {
	chunk   int
	limit   int
	failure error

	incoming []byte
	sent     []byte
	closed   bool
}

func (c *chunkedTransport) Send(b []byte) (int, error) {
	room := c.limit - len(c.sent)
	if room <= 0 {
		return 0, c.err()
	}
	n := min(len(b), c.chunk, room)
	c.sent = append(c.sent, b[:n]...)
	return n, nil
}

func (c *chunkedTransport) Receive(max int) ([]byte, error) {
	if len(c.incoming) == 0 {
		return nil, c.err()
	}
	n := min(max, c.chunk, len(c.incoming))
	out := c.incoming[:n]
	c.incoming = c.incoming[n:]
	return out, nil
}

func (c *chunkedTransport) Close() error {
	c.closed = true
	return nil
}

func (c *chunkedTransport) err() error {
	if c.failure != nil {
		return c.failure
	}
	return io.EOF
}

func TestSendFullShortWrites(t *testing.T) {
	payload := make([]byte, GraphFrameSize(5))
	for i := range payload {
		payload[i] = byte(i)
	}
	tr := &chunkedTransport{chunk: 7, limit: len(payload)}

	n, err := SendFull(context.Background(), tr, payload)
	if err != nil {
		t.Fatalf("SendFull() error = %v", err)
	}
	if n != len(payload) || string(tr.sent) != string(payload) {
		t.Errorf("SendFull() moved %d bytes, want %d", n, len(payload))
	}
}

func TestReceiveFullShortReads(t *testing.T) {
	g, _ := graph.Generate(5, graph.NewSeededSource(1))
	frame := EncodeGraph(g)
	tr := &chunkedTransport{chunk: 3, incoming: append([]byte(nil), frame...)}

	buf, err := ReceiveFull(context.Background(), tr, len(frame))
	if err != nil {
		t.Fatalf("ReceiveFull() error = %v", err)
	}
	decoded, err := DecodeGraph(buf, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.Equal(g) {
		t.Error("frame reassembled from short reads does not match")
	}
}

func TestReceiveFullHalfFrame(t *testing.T) {
	const n = 5
	tr := &chunkedTransport{chunk: 16, incoming: make([]byte, n*n*2)}

	_, err := ReceiveFull(context.Background(), tr, GraphFrameSize(n))

	var ite *IncompleteTransferError
	if !errors.As(err, &ite) {
		t.Fatalf("ReceiveFull() error = %v, want *IncompleteTransferError", err)
	}
	if ite.Expected != n*n*4 || ite.Actual != n*n*2 {
		t.Errorf("IncompleteTransferError expected=%d actual=%d, want %d/%d", ite.Expected, ite.Actual, n*n*4, n*n*2)
	}
	if ite.Err != nil {
		t.Errorf("closure reported transport error %v", ite.Err)
	}
}

func TestTransferTransportFailure(t *testing.T) {
	boom := errors.New("connection reset by peer")

	t.Run("receive", func(t *testing.T) {
		tr := &chunkedTransport{chunk: 4, incoming: make([]byte, 10), failure: boom}
		_, err := ReceiveFull(context.Background(), tr, 20)

		var ite *IncompleteTransferError
		var te *TransportError
		if !errors.As(err, &ite) || !errors.As(err, &te) {
			t.Fatalf("ReceiveFull() error = %v, want incomplete transfer wrapping transport error", err)
		}
		if ite.Actual != 10 || te.Op != "receive" || !errors.Is(err, boom) {
			t.Errorf("unexpected error detail: %v", err)
		}
	})

	t.Run("send", func(t *testing.T) {
		tr := &chunkedTransport{chunk: 4, limit: 6, failure: boom}
		n, err := SendFull(context.Background(), tr, make([]byte, 20))

		var ite *IncompleteTransferError
		if !errors.As(err, &ite) || !errors.Is(err, boom) {
			t.Fatalf("SendFull() error = %v, want incomplete transfer wrapping %v", err, boom)
		}
		if n != 6 || ite.Actual != 6 || ite.Expected != 20 {
			t.Errorf("SendFull() moved %d (%+v), want 6 of 20", n, ite)
		}
	})
}

func TestReceiveFullDeadline(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := ReceiveFull(ctx, NewStreamTransport(b), GraphFrameSize(5))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ReceiveFull() error = %v, want %v", err, context.DeadlineExceeded)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("ReceiveFull() took %v after deadline", time.Since(start))
	}
}

func TestReceiveFullCancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ReceiveFull(ctx, NewStreamTransport(b), HeaderSize)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ReceiveFull() error = %v, want %v", err, context.Canceled)
	}
}

func TestStreamTransportOverPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	p, _ := graph.RandomPermutation(5, graph.NewSeededSource(8))
	frame := EncodePermutation(p)

	go SendFull(context.Background(), NewStreamTransport(a), frame)

	buf, err := ReceiveFull(context.Background(), NewStreamTransport(b), len(frame))
	if err != nil {
		t.Fatalf("ReceiveFull() error = %v", err)
	}
	got, err := DecodePermutation(buf, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(p) {
		t.Errorf("received %v, want %v", got, p)
	}
}
