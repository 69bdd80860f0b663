// Package config loads node configuration files.
//
// A node file describes the link tuning, the listeners and connectors to
// open, and the optional protocol log, metrics endpoint and mDNS settings:
//
//	loop:
//	  poll_timeout: 200ms
//	  reconnect_interval: 3s
//	listeners:
//	  - address: 0.0.0.0:4000
//	    tls:
//	      cert_file: node.crt
//	      key_file: node.key
//	connectors:
//	  - address: peer.local:4000
//	    reconnect_interval: 1s
//	protocol_log: node.llog
//	metrics_address: 127.0.0.1:9100
//	discovery:
//	  advertise: true
//	  instance: node-a
//
// Relative file names are resolved against the directory of the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linkmq/linkmq-go/pkg/link"
)

// Config is a node configuration.
type Config struct {
	Loop       Loop        `yaml:"loop"`
	Listeners  []Listener  `yaml:"listeners"`
	Connectors []Connector `yaml:"connectors"`

	// ProtocolLog is the path of a protocol log file (optional).
	ProtocolLog string `yaml:"protocol_log"`

	// MetricsAddress enables the Prometheus endpoint (optional).
	MetricsAddress string `yaml:"metrics_address"`

	// LogLevel is debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Echo sends every received chunk back to its sender.
	Echo bool `yaml:"echo"`

	Discovery Discovery `yaml:"discovery"`
}

// Loop tunes the link.
type Loop struct {
	PollTimeout       time.Duration `yaml:"poll_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	RecvBlockSize     int           `yaml:"recv_block_size"`
	CaptureBytes      int           `yaml:"capture_bytes"`
}

// Listener is an address to accept connections on.
type Listener struct {
	Address string          `yaml:"address"`
	TLS     *link.TLSConfig `yaml:"tls"`
}

// Connector is a remote address to keep connected.
type Connector struct {
	Address           string          `yaml:"address"`
	ReconnectInterval time.Duration   `yaml:"reconnect_interval"`
	TLS               *link.TLSConfig `yaml:"tls"`
}

// Discovery configures mDNS.
type Discovery struct {
	// Advertise announces every listener.
	Advertise bool `yaml:"advertise"`

	// Instance is the advertised instance name. Defaults to the host name.
	Instance string `yaml:"instance"`

	// Browse adds a connector for every discovered peer.
	Browse bool `yaml:"browse"`

	// BrowseTimeout bounds a browse round. Zero browses until shutdown.
	BrowseTimeout time.Duration `yaml:"browse_timeout"`

	// TLS is used for connectors to discovered peers.
	TLS *link.TLSConfig `yaml:"tls"`
}

// Errors.
var (
	ErrInvalid = errors.New("invalid configuration")
)

// LoadError describes a configuration that could not be loaded.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes a configuration. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := c.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return &c, nil
}

// Load reads and decodes the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	c, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	c.resolvePaths(filepath.Dir(path))
	return c, nil
}

// Validate checks addresses, durations and TLS options.
func (c *Config) Validate() error {
	var errs []error
	lc := c.LinkConfig()
	if err := lc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	for i, l := range c.Listeners {
		if err := checkAddress(l.Address); err != nil {
			errs = append(errs, fmt.Errorf("listeners[%d]: %w", i, err))
		}
		if seen[l.Address] {
			errs = append(errs, fmt.Errorf("%w: listeners[%d]: duplicate address %q", ErrInvalid, i, l.Address))
		}
		seen[l.Address] = true
		if l.TLS != nil && l.TLS.CertFile == "" {
			errs = append(errs, fmt.Errorf("%w: listeners[%d]: tls requires cert_file", ErrInvalid, i))
		}
		errs = append(errs, checkTLS(fmt.Sprintf("listeners[%d]", i), l.TLS))
	}

	clear(seen)
	for i, cn := range c.Connectors {
		if err := checkAddress(cn.Address); err != nil {
			errs = append(errs, fmt.Errorf("connectors[%d]: %w", i, err))
		}
		if seen[cn.Address] {
			errs = append(errs, fmt.Errorf("%w: connectors[%d]: duplicate address %q", ErrInvalid, i, cn.Address))
		}
		seen[cn.Address] = true
		if cn.ReconnectInterval < 0 {
			errs = append(errs, fmt.Errorf("%w: connectors[%d]: negative reconnect_interval", ErrInvalid, i))
		} else if cn.ReconnectInterval > 0 && cn.ReconnectInterval <= lc.PollTimeout {
			errs = append(errs, fmt.Errorf("%w: connectors[%d]: reconnect_interval %v must exceed poll_timeout %v",
				ErrInvalid, i, cn.ReconnectInterval, lc.PollTimeout))
		}
		errs = append(errs, checkTLS(fmt.Sprintf("connectors[%d]", i), cn.TLS))
	}

	if c.Discovery.Advertise && len(c.Listeners) == 0 {
		errs = append(errs, fmt.Errorf("%w: discovery.advertise needs a listener", ErrInvalid))
	}
	if c.Discovery.BrowseTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: negative discovery.browse_timeout", ErrInvalid))
	}
	errs = append(errs, checkTLS("discovery", c.Discovery.TLS))
	if c.MetricsAddress != "" {
		if err := checkAddress(c.MetricsAddress); err != nil {
			errs = append(errs, fmt.Errorf("metrics_address: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LinkConfig returns the link tuning with defaults applied.
func (c *Config) LinkConfig() link.Config {
	lc := link.DefaultConfig()
	if c.Loop.PollTimeout != 0 {
		lc.PollTimeout = c.Loop.PollTimeout
	}
	if c.Loop.ReconnectInterval != 0 {
		lc.ReconnectInterval = c.Loop.ReconnectInterval
	}
	if c.Loop.RecvBlockSize != 0 {
		lc.RecvBlockSize = c.Loop.RecvBlockSize
	}
	lc.CaptureBytes = c.Loop.CaptureBytes
	return lc
}

// ParseLevel parses a log level name. The empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalid, s)
	}
	return level, nil
}

func checkAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalid)
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func checkTLS(where string, t *link.TLSConfig) error {
	if t == nil {
		return nil
	}
	switch t.Verify {
	case "", link.VerifyNone, link.VerifyOptional, link.VerifyRequired:
	default:
		return fmt.Errorf("%w: %s: unknown tls verify mode %q", ErrInvalid, where, t.Verify)
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		return fmt.Errorf("%w: %s: cert_file and key_file must be set together", ErrInvalid, where)
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	tlsPaths := func(t *link.TLSConfig) {
		if t != nil {
			abs(&t.CertFile)
			abs(&t.KeyFile)
			abs(&t.CAFile)
		}
	}
	abs(&c.ProtocolLog)
	for i := range c.Listeners {
		tlsPaths(c.Listeners[i].TLS)
	}
	for i := range c.Connectors {
		tlsPaths(c.Connectors[i].TLS)
	}
	tlsPaths(c.Discovery.TLS)
}
