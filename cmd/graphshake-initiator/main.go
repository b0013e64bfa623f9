package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ZentaChain/graphshake/pkg/config"
	"github.com/ZentaChain/graphshake/pkg/crypto"
	"github.com/ZentaChain/graphshake/pkg/graph"
	"github.com/ZentaChain/graphshake/pkg/log"
	"github.com/ZentaChain/graphshake/pkg/network"
	"github.com/ZentaChain/graphshake/pkg/session"
	"github.com/ZentaChain/graphshake/pkg/storage"
)

const (
	exitVerified = 0
	exitRejected = 1
	exitFailed   = 2
)

var (
	configPath  = flag.String("config", "", "Path to TOML config file")
	peerAddr    = flag.String("peer", "", "Responder address: host:port for tcp, multiaddr for libp2p")
	transport   = flag.String("transport", "", "Transport: tcp or libp2p")
	vertexCount = flag.Int("n", 0, "Graph vertex count")
	mode        = flag.String("mode", "", "Verification mode: simple or verified")
	negotiate   = flag.Bool("negotiate", true, "Exchange Hello/HelloAck/Verdict headers")
	seed        = flag.Int64("seed", 0, "Seed for reproducible graphs and permutations")
	attempts    = flag.Int("attempts", 0, "Connection attempts before giving up")
	dbPath      = flag.String("db", "", "Path to handshake ledger database")
	keyPath     = flag.String("key", "", "Path to libp2p identity key")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailed)
	}
	logger := cfg.NewLogger().Named("initiator")

	code := run(cfg, logger)
	_ = logger.Sync()
	os.Exit(code)
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "peer":
			cfg.Network.Peer = *peerAddr
		case "transport":
			cfg.Network.Transport = *transport
		case "n":
			cfg.Handshake.VertexCount = *vertexCount
		case "mode":
			cfg.Handshake.Mode = *mode
		case "negotiate":
			cfg.Handshake.Negotiate = *negotiate
		case "seed":
			cfg.Handshake.Seed = *seed
		case "attempts":
			cfg.Network.DialAttempts = *attempts
		case "db":
			cfg.Storage.Path = *dbPath
		case "key":
			cfg.Network.KeyPath = *keyPath
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	if _, err := cfg.DialTarget(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config, logger log.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []session.Option{session.WithLogger(logger)}
	if src := cfg.RandomSource(); src != nil {
		opts = append(opts, session.WithRandomSource(src))
	}

	if cfg.Storage.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			logger.Errorw("failed to create data directory", "error", err)
			return exitFailed
		}
		ledger, err := storage.OpenHandshakeLog(cfg.Storage.Path, cfg.Retention(), logger)
		if err != nil {
			logger.Errorw("failed to open handshake ledger", "error", err)
			return exitFailed
		}
		defer ledger.Close()
		opts = append(opts, session.WithObserver(ledger))
	}

	dialer, cleanup, err := newDialer(cfg, logger)
	if err != nil {
		logger.Errorw("failed to prepare transport", "error", err)
		return exitFailed
	}
	defer cleanup()

	policy := network.DefaultRetryPolicy()
	policy.Attempts = cfg.Network.DialAttempts
	conn, err := network.DialWithRetry(ctx, dialer, cfg.Network.Peer, policy, logger)
	if err != nil {
		logger.Errorw("failed to connect", "peer", cfg.Network.Peer, "error", err)
		return exitFailed
	}
	logger.Infow("connected", "peer", conn.Remote)

	s, err := session.Open(conn.Transport, session.RoleInitiator, cfg.SessionConfig(), opts...)
	if err != nil {
		_ = conn.Transport.Close()
		logger.Errorw("failed to open session", "error", err)
		return exitFailed
	}

	res, err := s.Run(ctx)
	sent, received := s.Exchanged()
	printGraph("Secret graph", s.SecretGraph())
	printGraph("Sent graph", sent)
	printGraph("Received graph", received)
	printResult(res, err)

	switch res.Outcome {
	case session.OutcomeVerified:
		return exitVerified
	case session.OutcomeRejected:
		return exitRejected
	default:
		return exitFailed
	}
}

// newDialer returns the dialer for the configured transport and a cleanup
// that releases it.
func newDialer(cfg *config.Config, logger log.Logger) (network.Dialer, func(), error) {
	if cfg.Network.Transport != config.TransportLibp2p {
		return network.DialerFunc(network.DialTCP), func() {}, nil
	}

	p2pCfg := &network.P2PConfig{Port: cfg.Network.P2PPort}
	if cfg.Network.KeyPath != "" {
		key, _, err := crypto.LoadOrGenerateIdentity(cfg.Network.KeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load identity key: %w", err)
		}
		p2pCfg.PrivateKey = key
	}
	h, err := network.NewP2PHost(p2pCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start libp2p host: %w", err)
	}
	return h, func() { _ = h.Close() }, nil
}

func printGraph(title string, g *graph.Graph) {
	if g == nil {
		return
	}
	fmt.Printf("%s:\n%s\n", title, g)
}

func printResult(res *session.Result, err error) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	switch res.Outcome {
	case session.OutcomeVerified:
		fmt.Println("✅ Handshake verified")
	case session.OutcomeRejected:
		fmt.Println("❌ Handshake rejected")
	default:
		fmt.Printf("⚠️  Handshake failed: %v\n", err)
	}
	fmt.Printf("   Session: %s\n", res.SessionID)
	fmt.Printf("   Mode: %s\n", res.Mode)
	fmt.Printf("   Duration: %s\n", res.Duration.Round(time.Microsecond))
	fmt.Printf("   Bytes: %d sent, %d received\n", res.BytesSent, res.BytesReceived)
	fmt.Printf("   States: %s\n", session.FormatStates(res.States))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}
