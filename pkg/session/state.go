package session

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTransition = errors.New("invalid session state transition")

// State is a step of the handshake state machine.
type State uint8

const (
	StateInit State = iota
	StateConnected
	StateGraphSent
	StateAwaitingPeerGraph
	StateVerified
	StateRejected
	StateClosed
)

var stateNames = map[State]string{
	StateInit:              "INIT",
	StateConnected:         "CONNECTED",
	StateGraphSent:         "GRAPH_SENT",
	StateAwaitingPeerGraph: "AWAITING_PEER_GRAPH",
	StateVerified:          "VERIFIED",
	StateRejected:          "REJECTED",
	StateClosed:            "CLOSED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

// Closed is reachable from every state. Verified and Rejected are decisions
// and are never left for anything but Closed.
var transitions = map[State][]State{
	StateInit:              {StateConnected, StateClosed},
	StateConnected:         {StateGraphSent, StateAwaitingPeerGraph, StateClosed},
	StateGraphSent:         {StateAwaitingPeerGraph, StateVerified, StateRejected, StateClosed},
	StateAwaitingPeerGraph: {StateGraphSent, StateVerified, StateRejected, StateClosed},
	StateVerified:          {StateClosed},
	StateRejected:          {StateClosed},
	StateClosed:            {},
}

// CanTransition reports whether the machine may move from one state to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FormatStates renders a state history as "INIT>CONNECTED>...".
func FormatStates(states []State) string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return strings.Join(names, ">")
}
