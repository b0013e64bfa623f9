package session

import (
	"time"

	"github.com/ZentaChain/graphshake/pkg/protocol"
	"github.com/ZentaChain/graphshake/pkg/verify"
)

// Outcome is what a finished session reports.
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	// OutcomeVerified: the peer relabeled the graph it was sent.
	OutcomeVerified
	// OutcomeRejected: verification ran and failed. Not an error.
	OutcomeRejected
	// OutcomeCompleted: a responder finished its turn without learning a verdict.
	OutcomeCompleted
	// OutcomeFailed: the session aborted on an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the report of one handshake attempt.
type Result struct {
	SessionID        protocol.SessionID
	Role             Role
	Mode             verify.Mode
	VertexCount      int
	Outcome          Outcome
	Err              error
	StartedAt        time.Time
	Duration         time.Duration
	BytesSent        int
	BytesReceived    int
	LocalFingerprint string // graph this side sent
	PeerFingerprint  string // graph received from the peer
	States           []State
}

// Observer is notified once per finished session.
type Observer interface {
	SessionFinished(r *Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r *Result)

func (f ObserverFunc) SessionFinished(r *Result) { f(r) }
