package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkmq/linkmq-go/pkg/link"
)

const sample = `
loop:
  poll_timeout: 100ms
  reconnect_interval: 2s
  recv_block_size: 65536
  capture_bytes: 32
listeners:
  - address: 0.0.0.0:4000
  - address: 127.0.0.1:4443
    tls:
      cert_file: certs/node.crt
      key_file: certs/node.key
      ca_file: /etc/linkmq/ca.pem
      verify: required
connectors:
  - address: peer.local:4000
    reconnect_interval: 500ms
  - address: 10.0.0.2:4443
    tls:
      verify: optional
      ca_file: ca.pem
      min_version: "1.3"
protocol_log: logs/node.llog
metrics_address: 127.0.0.1:9100
log_level: debug
echo: true
discovery:
  advertise: true
  instance: node-a
  browse: true
  browse_timeout: 5s
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, c.Loop.PollTimeout)
	assert.Equal(t, 2*time.Second, c.Loop.ReconnectInterval)
	require.Len(t, c.Listeners, 2)
	assert.Nil(t, c.Listeners[0].TLS)
	require.NotNil(t, c.Listeners[1].TLS)
	assert.Equal(t, link.VerifyRequired, c.Listeners[1].TLS.Verify)
	require.Len(t, c.Connectors, 2)
	assert.Equal(t, 500*time.Millisecond, c.Connectors[0].ReconnectInterval)
	assert.Equal(t, "1.3", c.Connectors[1].TLS.MinVersion)
	assert.True(t, c.Echo)
	assert.True(t, c.Discovery.Advertise)
	assert.Equal(t, "node-a", c.Discovery.Instance)
	assert.Equal(t, 5*time.Second, c.Discovery.BrowseTimeout)

	lc := c.LinkConfig()
	assert.Equal(t, 100*time.Millisecond, lc.PollTimeout)
	assert.Equal(t, 2*time.Second, lc.ReconnectInterval)
	assert.Equal(t, 65536, lc.RecvBlockSize)
	assert.Equal(t, 32, lc.CaptureBytes)
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, link.DefaultConfig().PollTimeout, c.LinkConfig().PollTimeout)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("listeners:\n  - address: :4000\n    backlog: 10\n"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "failed to parse YAML", le.Message)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing address", "listeners:\n  - tls: null\n"},
		{"bad address", "connectors:\n  - address: nohost\n"},
		{"duplicate listener", "listeners:\n  - address: :1\n  - address: :1\n"},
		{"duplicate connector", "connectors:\n  - address: a:1\n  - address: a:1\n"},
		{"poll timeout too large", "loop:\n  poll_timeout: 5s\n  reconnect_interval: 1s\n"},
		{"connector interval below poll timeout", "connectors:\n  - address: a:1\n    reconnect_interval: 1ms\n"},
		{"negative interval", "connectors:\n  - address: a:1\n    reconnect_interval: -1s\n"},
		{"listener tls without cert", "listeners:\n  - address: :1\n    tls:\n      verify: none\n"},
		{"cert without key", "connectors:\n  - address: a:1\n    tls:\n      cert_file: c.pem\n"},
		{"bad verify", "connectors:\n  - address: a:1\n    tls:\n      verify: maybe\n"},
		{"bad log level", "log_level: loud\n"},
		{"advertise without listener", "discovery:\n  advertise: true\n"},
		{"bad metrics address", "metrics_address: nine\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid) || errors.Is(err, link.ErrInvalidConfig), "error %v", err)
		})
	}
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "logs/node.llog"), c.ProtocolLog)
	assert.Equal(t, filepath.Join(dir, "certs/node.crt"), c.Listeners[1].TLS.CertFile)
	assert.Equal(t, "/etc/linkmq/ca.pem", c.Listeners[1].TLS.CAFile)
	assert.Equal(t, filepath.Join(dir, "ca.pem"), c.Connectors[1].TLS.CAFile)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: loud\n"), 0o600))
	_, err = Load(path)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.File)
	assert.Contains(t, err.Error(), path)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"": "INFO", "debug": "DEBUG", "WARN": "WARN", "error": "ERROR"} {
		level, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, level.String())
	}
}
