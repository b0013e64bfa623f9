package protocol

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrInvalidMagic       = errors.New("invalid protocol magic")
	ErrInvalidVersion     = errors.New("unsupported protocol version")
	ErrInvalidHeader      = errors.New("invalid header")
	ErrUnexpectedMessage  = errors.New("unexpected message type")
	ErrInvalidVertexCount = errors.New("unsupported vertex count")
)

// Header is the optional session envelope exchanged around the graph frames
type Header struct {
	Magic       uint32    // Magic number (0x4753484B)
	Version     uint16    // Protocol version
	Type        uint16    // Message type
	Mode        uint16    // Verification mode
	VertexCount uint16    // Graph dimension N
	Flags       uint16    // Feature flags
	SessionID   SessionID // Handshake attempt ID
	Reserved    uint16    // Reserved for future use
}

// NewHeader returns a header with magic and version filled in.
func NewHeader(msgType uint16, mode uint16, n int, id SessionID) *Header {
	return &Header{
		Magic:       ProtocolMagic,
		Version:     ProtocolVersion,
		Type:        msgType,
		Mode:        mode,
		VertexCount: uint16(n),
		SessionID:   id,
	}
}

// Encode encodes the header to bytes
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)

	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Type)
	binary.BigEndian.PutUint16(buf[8:10], h.Mode)
	binary.BigEndian.PutUint16(buf[10:12], h.VertexCount)
	binary.BigEndian.PutUint16(buf[12:14], h.Flags)
	copy(buf[14:30], h.SessionID[:])
	binary.BigEndian.PutUint16(buf[30:32], h.Reserved)

	return buf
}

// Decode decodes the header from bytes
func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrInvalidHeader
	}

	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	h.Version = binary.BigEndian.Uint16(buf[4:6])
	h.Type = binary.BigEndian.Uint16(buf[6:8])
	h.Mode = binary.BigEndian.Uint16(buf[8:10])
	h.VertexCount = binary.BigEndian.Uint16(buf[10:12])
	h.Flags = binary.BigEndian.Uint16(buf[12:14])
	copy(h.SessionID[:], buf[14:30])
	h.Reserved = binary.BigEndian.Uint16(buf[30:32])

	return nil
}

// Validate validates the header
func (h *Header) Validate() error {
	if h.Magic != ProtocolMagic {
		return ErrInvalidMagic
	}

	if h.Version != ProtocolVersion {
		return ErrInvalidVersion
	}

	if h.VertexCount == 0 || h.VertexCount > MaxVertexCount {
		return fmt.Errorf("%w: %d", ErrInvalidVertexCount, h.VertexCount)
	}

	return nil
}

// HasFlag checks if a flag is set
func (h *Header) HasFlag(flag uint16) bool {
	return (h.Flags & flag) != 0
}

// SetFlag sets a flag
func (h *Header) SetFlag(flag uint16) {
	h.Flags |= flag
}

// ReadHeader reads and validates one envelope header
func ReadHeader(ctx context.Context, t Transport) (*Header, error) {
	buf, err := ReceiveFull(ctx, t, HeaderSize)
	if err != nil {
		return nil, err
	}

	header := &Header{}
	if err := header.Decode(buf); err != nil {
		return nil, err
	}

	if err := header.Validate(); err != nil {
		return nil, err
	}

	return header, nil
}

// ExpectHeader reads a header and checks its message type
func ExpectHeader(ctx context.Context, t Transport, msgType uint16) (*Header, error) {
	header, err := ReadHeader(ctx, t)
	if err != nil {
		return nil, err
	}
	if header.Type != msgType {
		return nil, fmt.Errorf("%w: got 0x%04x, want 0x%04x", ErrUnexpectedMessage, header.Type, msgType)
	}
	return header, nil
}

// WriteHeader writes a header to the transport
func WriteHeader(ctx context.Context, t Transport, h *Header) error {
	_, err := SendFull(ctx, t, h.Encode())
	return err
}
