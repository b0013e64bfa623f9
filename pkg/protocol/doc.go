// Package protocol implements the GraphShake wire format.
//
// The protocol package defines the fixed-size frames exchanged during a
// handshake, the loop-until-complete transfer primitives that move them over
// a stream transport, and the optional session envelope that wraps them.
//
// # Frames
//
// Every frame element is a 4-byte unsigned integer in big-endian (network)
// byte order:
//   - GraphFrame: N·N elements, the adjacency matrix row-major, values in {0,1}
//   - PermutationFrame: N elements forming a permutation of 0..N-1
//
// Frames carry no length prefix; both sides know N from configuration (or
// from the envelope). A frame of the wrong length is a *FramingError.
//
// # Exchange Variants
//
// Simple (brute-force):
//   - Initiator sends GraphFrame (its secret graph relabeled)
//   - Responder replies with GraphFrame (its own relabeling applied, not disclosed)
//
// Verified (algebraic):
//   - Initiator sends GraphFrame
//   - Responder replies with GraphFrame then PermutationFrame
//
// # Envelope
//
// When negotiation is enabled, the frames are bracketed by 32-byte headers:
//   - Magic (4 bytes): Protocol identifier (0x4753484B = "GSHK")
//   - Version (2 bytes): Protocol version (0x0100 = v1.0)
//   - Type (2 bytes): Hello, HelloAck or Verdict
//   - Mode (2 bytes): Verification mode
//   - VertexCount (2 bytes): Graph dimension N
//   - Flags (2 bytes): Accepted, PermutationFrame
//   - SessionID (16 bytes): Time-ordered UUID of the handshake attempt
//   - Reserved (2 bytes): Reserved for future use
//
// The Initiator opens with Hello, the Responder answers HelloAck once it has
// checked the mode and vertex count against its own configuration, and after
// verification the Initiator closes with a Verdict.
//
// # Transfers
//
// A single read or write on a stream is not guaranteed to move a whole frame.
// SendFull and ReceiveFull loop until the expected count has moved, and
// report an *IncompleteTransferError with the expected and actual byte counts
// when the stream closes or fails first. Deadlines and cancellation from the
// caller's context are mapped onto the transport when it implements Deadliner.
//
// # Security Considerations
//
// The exchanged graph is visible to the very peer being authenticated. The
// handshake checks relabeling consistency; it provides no confidentiality.
package protocol
