package network

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	p2pnet "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/ZentaChain/graphshake/pkg/log"
	"github.com/ZentaChain/graphshake/pkg/protocol"
)

// ProtocolID identifies handshake streams.
const ProtocolID = "/graphshake/1.0.0"

// P2PConfig configures a libp2p host.
type P2PConfig struct {
	ListenHost string // defaults to 0.0.0.0
	Port       int    // 0 picks a free port
	PrivateKey p2pcrypto.PrivKey
	NATPortMap bool
}

// P2PHost is a libp2p host that accepts and opens handshake streams.
type P2PHost struct {
	host     host.Host
	incoming chan p2pnet.Stream
	done     chan struct{}
	once     sync.Once
	logger   log.Logger
}

// NewP2PHost creates a host and registers the handshake stream handler.
func NewP2PHost(cfg *P2PConfig, logger log.Logger) (*P2PHost, error) {
	if cfg == nil {
		cfg = &P2PConfig{}
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}

	priv := cfg.PrivateKey
	if priv == nil {
		var err error
		priv, _, err = p2pcrypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
	}

	listenHost := cfg.ListenHost
	if listenHost == "" {
		listenHost = "0.0.0.0"
	}
	listenAddr := fmt.Sprintf("/ip4/%s/tcp/%d", listenHost, cfg.Port)

	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
	}
	if cfg.NATPortMap {
		opts = append(opts, libp2p.NATPortMap())
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	p := &P2PHost{
		host:     h,
		incoming: make(chan p2pnet.Stream),
		done:     make(chan struct{}),
		logger:   logger.Named("p2p").With("peer", h.ID().String()),
	}
	h.SetStreamHandler(ProtocolID, p.handleStream)
	return p, nil
}

// handleStream parks the stream until Accept takes it.
func (p *P2PHost) handleStream(s p2pnet.Stream) {
	select {
	case p.incoming <- s:
	case <-p.done:
		_ = s.Reset()
	}
}

// Accept waits for the next inbound handshake stream.
func (p *P2PHost) Accept(ctx context.Context) (*Conn, error) {
	select {
	case s := <-p.incoming:
		return streamConn(s), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrServerClosed
	}
}

// Dial connects to a peer multiaddr ending in /p2p/<id> and opens a
// handshake stream.
func (p *P2PHost) Dial(ctx context.Context, addr string) (*Conn, error) {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid peer address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse peer info: %w", err)
	}
	if err := p.host.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("failed to connect to peer: %w", err)
	}

	s, err := p.host.NewStream(ctx, info.ID, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	p.logger.Debugw("stream opened", "remote", info.ID.String())
	return streamConn(s), nil
}

func streamConn(s p2pnet.Stream) *Conn {
	return &Conn{
		Transport: protocol.NewStreamTransport(s),
		Remote:    fmt.Sprintf("%s/p2p/%s", s.Conn().RemoteMultiaddr(), s.Conn().RemotePeer()),
	}
}

// ID returns the host's peer ID.
func (p *P2PHost) ID() peer.ID { return p.host.ID() }

// Addrs returns the dialable addresses including the /p2p/ component.
func (p *P2PHost) Addrs() []string {
	full, err := peer.AddrInfoToP2pAddrs(&peer.AddrInfo{ID: p.host.ID(), Addrs: p.host.Addrs()})
	if err != nil {
		return nil
	}
	out := make([]string, len(full))
	for i, a := range full {
		out[i] = a.String()
	}
	return out
}

// Addr returns the first dialable address.
func (p *P2PHost) Addr() string {
	if addrs := p.Addrs(); len(addrs) > 0 {
		return addrs[0]
	}
	return p.host.ID().String()
}

// Close stops accepting and shuts the host down.
func (p *P2PHost) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		p.host.RemoveStreamHandler(ProtocolID)
		err = p.host.Close()
	})
	return err
}
