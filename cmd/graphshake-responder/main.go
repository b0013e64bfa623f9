package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ZentaChain/graphshake/pkg/api"
	"github.com/ZentaChain/graphshake/pkg/config"
	"github.com/ZentaChain/graphshake/pkg/crypto"
	"github.com/ZentaChain/graphshake/pkg/graph"
	"github.com/ZentaChain/graphshake/pkg/log"
	"github.com/ZentaChain/graphshake/pkg/metrics"
	"github.com/ZentaChain/graphshake/pkg/network"
	"github.com/ZentaChain/graphshake/pkg/session"
	"github.com/ZentaChain/graphshake/pkg/storage"
)

var (
	configPath  = flag.String("config", "", "Path to TOML config file")
	listenAddr  = flag.String("listen", "", "TCP address to listen on")
	transport   = flag.String("transport", "", "Transport: tcp or libp2p")
	vertexCount = flag.Int("n", 0, "Graph vertex count")
	mode        = flag.String("mode", "", "Verification mode: simple or verified")
	negotiate   = flag.Bool("negotiate", true, "Exchange Hello/HelloAck/Verdict headers")
	seed        = flag.Int64("seed", 0, "Seed for reproducible graphs and permutations")
	dbPath      = flag.String("db", "", "Path to handshake ledger database")
	enableAPI   = flag.Bool("api", false, "Enable the HTTP status API")
	apiPort     = flag.Int("api-port", 0, "HTTP status API port")
	p2pPort     = flag.Int("p2p-port", 0, "libp2p listen port")
	keyPath     = flag.String("key", "", "Path to libp2p identity key")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	printBanner()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logger := cfg.NewLogger().Named("responder")
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Errorw("responder stopped", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
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
		case "listen":
			cfg.Network.Listen = *listenAddr
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
		case "db":
			cfg.Storage.Path = *dbPath
		case "api":
			cfg.API.Enable = *enableAPI
		case "api-port":
			cfg.API.Port = *apiPort
		case "p2p-port":
			cfg.Network.P2PPort = *p2pPort
		case "key":
			cfg.Network.KeyPath = *keyPath
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	// The responder never dials.
	cfg.Network.Peer = ""
	return cfg, cfg.FixupAndValidate()
}

func run(cfg *config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	observers := []session.Option{session.WithObserver(m)}

	var ledger api.Ledger
	if cfg.Storage.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		hl, err := storage.OpenHandshakeLog(cfg.Storage.Path, cfg.Retention(), logger)
		if err != nil {
			return fmt.Errorf("failed to open handshake ledger: %w", err)
		}
		defer func() {
			if err := hl.Close(); err != nil {
				logger.Warnw("closing handshake ledger", "error", err)
			}
		}()
		ledger = hl
		observers = append(observers, session.WithObserver(hl))
		logger.Infow("handshake ledger opened", "path", cfg.Storage.Path, "retention_days", cfg.Storage.RetentionDays)
	}

	listener, err := listen(cfg, logger)
	if err != nil {
		return err
	}

	sessionCfg := cfg.SessionConfig()
	src := cfg.RandomSource()
	handler := func(ctx context.Context, c *network.Conn) {
		opts := append([]session.Option{session.WithLogger(logger.With("remote", c.Remote))}, observers...)
		if src != nil {
			opts = append(opts, session.WithRandomSource(src))
		}
		s, err := session.Open(c.Transport, session.RoleResponder, sessionCfg, opts...)
		if err != nil {
			logger.Errorw("failed to open session", "remote", c.Remote, "error", err)
			_ = c.Transport.Close()
			return
		}
		res, err := s.Run(ctx)
		sent, received := s.Exchanged()
		printGraph("Received graph", received)
		printGraph("Sent graph", sent)
		if err != nil {
			fmt.Printf("Outcome: %s (%v)\n\n", res.Outcome, err)
			return
		}
		fmt.Printf("Outcome: %s\n\n", res.Outcome)
	}

	srv := network.NewServer(listener, handler, logger)

	if cfg.API.Enable {
		apiCfg := api.DefaultConfig()
		apiCfg.Port = cfg.API.Port
		apiCfg.EnableCORS = cfg.API.EnableCORS
		apiCfg.RateLimit = cfg.API.RateLimit
		apiCfg.Role = session.RoleResponder.String()
		apiServer := api.NewServer(ledger, apiCfg,
			api.WithNode(srv),
			api.WithMetrics(m.Handler()),
			api.WithLogger(logger.Named("api")))
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				logger.Errorw("status API stopped", "error", err)
			}
		}()
	}

	printStatus(cfg, srv)

	err = srv.Serve(ctx)
	fmt.Println()
	logger.Infow("shutting down", "handled", srv.Handled(), "uptime", srv.Uptime().String())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func listen(cfg *config.Config, logger log.Logger) (network.Listener, error) {
	if cfg.Network.Transport != config.TransportLibp2p {
		l, err := network.ListenTCP(cfg.Network.Listen)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Network.Listen, err)
		}
		return l, nil
	}

	p2pCfg := &network.P2PConfig{Port: cfg.Network.P2PPort}
	if cfg.Network.KeyPath != "" {
		key, generated, err := crypto.LoadOrGenerateIdentity(cfg.Network.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load identity key: %w", err)
		}
		if generated {
			logger.Infow("new identity key saved", "path", cfg.Network.KeyPath)
		}
		p2pCfg.PrivateKey = key
	}
	h, err := network.NewP2PHost(p2pCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start libp2p host: %w", err)
	}
	return h, nil
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════════╗")
	fmt.Println("║          Graphshake Responder v1.0               ║")
	fmt.Println("║      Permutation-based graph handshake           ║")
	fmt.Println("╚═══════════════════════════════════════════════════╝")
	fmt.Println()
}

func printGraph(title string, g *graph.Graph) {
	if g == nil {
		return
	}
	fmt.Printf("%s:\n%s\n", title, g)
}

func printStatus(cfg *config.Config, srv *network.Server) {
	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("🚀 Responder Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("   Status: ✅ RUNNING\n")
	fmt.Printf("   Transport: %s\n", cfg.Network.Transport)
	fmt.Printf("   Address: %s\n", srv.Addr())
	fmt.Printf("   Vertices: %d\n", cfg.Handshake.VertexCount)
	fmt.Printf("   Mode: %s\n", cfg.Handshake.Mode)
	fmt.Printf("   Negotiate: %v\n", cfg.Handshake.Negotiate)
	if cfg.Storage.Path != "" {
		fmt.Printf("   Ledger: %s\n", cfg.Storage.Path)
	} else {
		fmt.Printf("   Ledger: ⚠️  DISABLED\n")
	}
	if cfg.API.Enable {
		fmt.Printf("   Status API: http://localhost:%d\n", cfg.API.Port)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()
}
