package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/graphshake/pkg/verify"
)

const sample = `
[Handshake]
  VertexCount = 3
  Mode = "BruteForce"
  TimeoutSeconds = 5
  Seed = 42

[Network]
  Transport = "libp2p"
  Peer = "/ip4/127.0.0.1/tcp/4001/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"
  P2PPort = 4001

[Storage]
  Path = "/var/lib/graphshake/handshakes.db"

[Logging]
  Level = "DEBUG"
  JSON = true
`

func TestLoad(t *testing.T) {
	cfg, err := Load([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Handshake.VertexCount)
	assert.Equal(t, "simple", cfg.Handshake.Mode)
	peer, err := cfg.DialTarget()
	require.NoError(t, err)
	assert.Equal(t, cfg.Network.Peer, peer)
	assert.True(t, cfg.Handshake.Negotiate, "absent keys keep their defaults")
	assert.Equal(t, TransportLibp2p, cfg.Network.Transport)
	assert.Equal(t, defaultListen, cfg.Network.Listen)
	assert.Equal(t, 30, cfg.Storage.RetentionDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)

	sc := cfg.SessionConfig()
	assert.Equal(t, 3, sc.VertexCount)
	assert.Equal(t, verify.ModeSimple, sc.Mode)
	assert.Equal(t, 5*time.Second, sc.Timeout)
	require.NoError(t, sc.Validate())

	src := cfg.RandomSource()
	require.NotNil(t, src)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.FixupAndValidate())
	assert.Nil(t, cfg.RandomSource())
	assert.Equal(t, verify.ModeVerified, cfg.SessionConfig().Mode)
	assert.NotNil(t, cfg.NewLogger())
}

func TestLibp2pWithoutPeer(t *testing.T) {
	cfg, err := Load([]byte("[Network]\nTransport = \"libp2p\"\n"))
	require.NoError(t, err, "a responder needs no peer")
	assert.Empty(t, cfg.Network.Peer)

	_, err = cfg.DialTarget()
	assert.ErrorIs(t, err, ErrNoPeer)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"vertex count", "[Handshake]\nVertexCount = 11\n"},
		{"mode", "[Handshake]\nMode = \"quantum\"\n"},
		{"timeout", "[Handshake]\nTimeoutSeconds = -1\n"},
		{"transport", "[Network]\nTransport = \"udp\"\n"},
		{"listen", "[Network]\nListen = \"8080\"\n"},
		{"tcp peer", "[Network]\nPeer = \"localhost\"\n"},
		{"libp2p peer without id", "[Network]\nTransport = \"libp2p\"\nPeer = \"/ip4/127.0.0.1/tcp/4001\"\n"},
		{"libp2p peer garbage", "[Network]\nTransport = \"libp2p\"\nPeer = \"127.0.0.1:4001\"\n"},
		{"api port", "[API]\nEnable = true\nPort = 70000\n"},
		{"log level", "[Logging]\nLevel = \"chatty\"\n"},
		{"unknown key", "[Handshake]\nVertices = 5\n"},
		{"syntax", "[Handshake\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(nil)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphshake.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Network]\nListen = \"0.0.0.0:9000\"\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Network.Listen)
	assert.Equal(t, 5, cfg.Handshake.VertexCount)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
