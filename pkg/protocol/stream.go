package protocol

import (
	"io"
	"time"
)

// StreamTransport adapts an io.ReadWriteCloser, such as a net.Conn or a
// libp2p stream, to Transport.
type StreamTransport struct {
	rwc io.ReadWriteCloser
}

// NewStreamTransport wraps rwc.
func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{rwc: rwc}
}

// Send writes b in a single call to the underlying stream.
func (s *StreamTransport) Send(b []byte) (int, error) {
	return s.rwc.Write(b)
}

// Receive performs a single read of at most max bytes.
func (s *StreamTransport) Receive(max int) ([]byte, error) {
	buf := make([]byte, max)
	n, err := s.rwc.Read(buf)
	return buf[:n], err
}

// Close closes the underlying stream.
func (s *StreamTransport) Close() error {
	return s.rwc.Close()
}

// SetDeadline forwards to the underlying stream when it supports deadlines.
func (s *StreamTransport) SetDeadline(t time.Time) error {
	if d, ok := s.rwc.(Deadliner); ok {
		return d.SetDeadline(t)
	}
	return nil
}
