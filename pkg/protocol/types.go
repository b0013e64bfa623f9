package protocol

import (
	"github.com/google/uuid"
)

// Protocol constants
const (
	// Magic number for the session envelope ('GSHK')
	ProtocolMagic = 0x4753484B

	// Protocol version
	ProtocolVersion = 0x0100 // v1.0

	// Envelope header size
	HeaderSize = 32

	// Every frame element is a 4-byte big-endian unsigned integer
	ElementSize = 4

	// Vertex count used when none is configured
	DefaultVertexCount = 5

	// Upper bound accepted from a peer's envelope. Brute-force verification
	// enumerates N! relabelings, so anything larger is not a usable session.
	MaxVertexCount = 10
)

// Envelope message types
const (
	MsgTypeHello    uint16 = 0x0001 // Initiator announces mode and vertex count
	MsgTypeHelloAck uint16 = 0x0002 // Responder accepts the announced parameters
	MsgTypeVerdict  uint16 = 0x0003 // Initiator reports the verification outcome
)

// Flags
const (
	FlagAccepted         uint16 = 0x0001 // Verdict: peer relabeling verified
	FlagPermutationFrame uint16 = 0x0002 // Responder discloses its permutation
)

// SessionID identifies one handshake attempt (16 bytes)
type SessionID [16]byte

// NewSessionID returns a time-ordered random session ID.
func NewSessionID() SessionID {
	id, err := uuid.NewV7()
	if err != nil {
		// v7 only fails when the entropy source does; fall back to v4
		id = uuid.New()
	}
	return SessionID(id)
}

// String formats the ID in canonical UUID form.
func (id SessionID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether the ID is unset.
func (id SessionID) IsZero() bool {
	return id == SessionID{}
}

// ParseSessionID parses the canonical UUID form.
func ParseSessionID(s string) (SessionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(id), nil
}
