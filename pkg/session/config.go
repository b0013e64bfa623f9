package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZentaChain/graphshake/pkg/protocol"
	"github.com/ZentaChain/graphshake/pkg/verify"
)

var (
	ErrInvalidConfig  = errors.New("invalid session config")
	ErrConfigMismatch = errors.New("peer session parameters do not match")
	ErrUnknownRole    = errors.New("unknown session role")
)

// DefaultTimeout bounds a whole handshake when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Role is the side of the handshake a session plays.
type Role uint8

const (
	RoleInitiator Role = iota + 1
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Config holds the parameters both peers must agree on.
type Config struct {
	VertexCount int           // Graph dimension N
	Mode        verify.Mode   // Exchange variant and verification strategy
	Negotiate   bool          // Wrap the frames in Hello/HelloAck/Verdict headers
	Timeout     time.Duration // Bound on the whole handshake; 0 disables it
}

// DefaultConfig returns default session configuration
func DefaultConfig() *Config {
	return &Config{
		VertexCount: protocol.DefaultVertexCount,
		Mode:        verify.ModeVerified,
		Negotiate:   false,
		Timeout:     DefaultTimeout,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.VertexCount <= 0 || c.VertexCount > protocol.MaxVertexCount {
		return fmt.Errorf("%w: vertex count %d outside [1,%d]", ErrInvalidConfig, c.VertexCount, protocol.MaxVertexCount)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, c.Mode)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}
