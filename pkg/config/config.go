// Package config loads the TOML configuration shared by the graphshake
// commands.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/multiformats/go-multiaddr"

	"github.com/ZentaChain/graphshake/pkg/graph"
	"github.com/ZentaChain/graphshake/pkg/log"
	"github.com/ZentaChain/graphshake/pkg/protocol"
	"github.com/ZentaChain/graphshake/pkg/session"
	"github.com/ZentaChain/graphshake/pkg/verify"
)

const (
	TransportTCP    = "tcp"
	TransportLibp2p = "libp2p"

	defaultListen  = "127.0.0.1:8080"
	defaultAPIPort = 9090
)

// Handshake holds the parameters both peers must agree on.
type Handshake struct {
	// VertexCount is the graph dimension N.
	VertexCount int

	// Mode is "simple" or "verified".
	Mode string

	// Negotiate wraps the frames in Hello/HelloAck/Verdict headers.
	Negotiate bool

	// TimeoutSeconds bounds one handshake; 0 disables the bound.
	TimeoutSeconds int

	// Seed makes graph and permutation generation reproducible; 0 seeds
	// from the system entropy source.
	Seed int64
}

// Network selects the transport.
type Network struct {
	// Transport is "tcp" or "libp2p".
	Transport string

	// Listen is the responder's TCP address.
	Listen string

	// Peer is the initiator's target: host:port for tcp, a multiaddr
	// ending in /p2p/<id> for libp2p.
	Peer string

	// P2PPort is the libp2p listen port; 0 picks a free one.
	P2PPort int

	// KeyPath holds the libp2p identity key so the peer ID survives
	// restarts; empty uses a fresh key per run.
	KeyPath string

	// DialAttempts bounds initiator connection retries.
	DialAttempts int
}

// Storage configures the handshake ledger.
type Storage struct {
	// Path of the sqlite file; empty disables the ledger.
	Path string

	// RetentionDays before records are pruned.
	RetentionDays int
}

// API configures the HTTP status server.
type API struct {
	Enable     bool
	Port       int
	EnableCORS bool
	RateLimit  int
}

// Logging configures the process logger.
type Logging struct {
	// Level is one of debug, info, warn, error.
	Level string

	// JSON switches from console to JSON output.
	JSON bool
}

// Config is the top level configuration.
type Config struct {
	Handshake Handshake
	Network   Network
	Storage   Storage
	API       API
	Logging   Logging
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Handshake: Handshake{
			VertexCount:    protocol.DefaultVertexCount,
			Mode:           verify.ModeVerified.String(),
			Negotiate:      true,
			TimeoutSeconds: int(session.DefaultTimeout / time.Second),
		},
		Network: Network{
			Transport:    TransportTCP,
			Listen:       defaultListen,
			DialAttempts: 3,
		},
		Storage: Storage{
			RetentionDays: 30,
		},
		API: API{
			Port:       defaultAPIPort,
			EnableCORS: true,
			RateLimit:  600,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// FixupAndValidate applies defaults to config entries and validates the
// supplied configuration. Most people should call one of the Load variants
// instead.
func (cfg *Config) FixupAndValidate() error {
	h := &cfg.Handshake
	if h.VertexCount == 0 {
		h.VertexCount = protocol.DefaultVertexCount
	}
	if h.VertexCount < 1 || h.VertexCount > protocol.MaxVertexCount {
		return fmt.Errorf("config: Handshake: VertexCount %d outside [1,%d]", h.VertexCount, protocol.MaxVertexCount)
	}
	if h.Mode == "" {
		h.Mode = verify.ModeVerified.String()
	}
	mode, err := verify.ParseMode(h.Mode)
	if err != nil {
		return fmt.Errorf("config: Handshake: %v", err)
	}
	h.Mode = mode.String()
	if h.TimeoutSeconds < 0 {
		return fmt.Errorf("config: Handshake: TimeoutSeconds %d is negative", h.TimeoutSeconds)
	}

	n := &cfg.Network
	n.Transport = strings.ToLower(n.Transport)
	switch n.Transport {
	case "":
		n.Transport = TransportTCP
	case TransportTCP, TransportLibp2p:
	default:
		return fmt.Errorf("config: Network: Transport '%v' is invalid", n.Transport)
	}
	if n.Listen == "" {
		n.Listen = defaultListen
	}
	if _, _, err := net.SplitHostPort(n.Listen); err != nil {
		return fmt.Errorf("config: Network: Listen '%v': %v", n.Listen, err)
	}
	if n.Peer != "" {
		if err := validatePeer(n.Transport, n.Peer); err != nil {
			return err
		}
	}
	if n.P2PPort < 0 || n.P2PPort > 65535 {
		return fmt.Errorf("config: Network: P2PPort %d is invalid", n.P2PPort)
	}
	if n.DialAttempts <= 0 {
		n.DialAttempts = 1
	}

	if cfg.Storage.RetentionDays < 0 {
		return errors.New("config: Storage: RetentionDays is negative")
	}

	if cfg.API.Enable && (cfg.API.Port <= 0 || cfg.API.Port > 65535) {
		return fmt.Errorf("config: API: Port %d is invalid", cfg.API.Port)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if _, err := log.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("config: Logging: Level '%v' is invalid", cfg.Logging.Level)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	return nil
}

func validatePeer(transport, peer string) error {
	if transport == TransportLibp2p {
		maddr, err := multiaddr.NewMultiaddr(peer)
		if err != nil {
			return fmt.Errorf("config: Network: Peer '%v': %v", peer, err)
		}
		if _, err := maddr.ValueForProtocol(multiaddr.P_P2P); err != nil {
			return fmt.Errorf("config: Network: Peer '%v' has no /p2p component", peer)
		}
		return nil
	}
	if _, _, err := net.SplitHostPort(peer); err != nil {
		return fmt.Errorf("config: Network: Peer '%v': %v", peer, err)
	}
	return nil
}

// ErrNoPeer is returned by DialTarget when Network.Peer is empty.
var ErrNoPeer = errors.New("config: Network: Peer is required to dial (set it or pass -peer)")

// DialTarget returns the peer the initiator connects to.
func (cfg *Config) DialTarget() (string, error) {
	if cfg.Network.Peer == "" {
		return "", ErrNoPeer
	}
	return cfg.Network.Peer, nil
}

// SessionConfig returns the session parameters.
func (cfg *Config) SessionConfig() *session.Config {
	mode, _ := verify.ParseMode(cfg.Handshake.Mode)
	return &session.Config{
		VertexCount: cfg.Handshake.VertexCount,
		Mode:        mode,
		Negotiate:   cfg.Handshake.Negotiate,
		Timeout:     time.Duration(cfg.Handshake.TimeoutSeconds) * time.Second,
	}
}

// RandomSource returns a seeded source when Seed is set, nil otherwise.
func (cfg *Config) RandomSource() graph.RandomSource {
	if cfg.Handshake.Seed == 0 {
		return nil
	}
	return graph.NewSeededSource(cfg.Handshake.Seed)
}

// Retention returns the ledger retention.
func (cfg *Config) Retention() time.Duration {
	return time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour
}

// NewLogger builds the process logger from the Logging section.
func (cfg *Config) NewLogger() log.Logger {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	return log.New(nil, level, cfg.Logging.JSON)
}

// Load parses and validates the provided buffer b as a config file body and
// returns the Config. Keys absent from b keep their DefaultConfig values.
func Load(b []byte) (*Config, error) {
	if b == nil {
		return nil, errors.New("config: nil buffer")
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
