// Command linkmq-node runs a linkmq link as a standalone process.
//
// The node opens the listeners and connectors given on the command line or
// in a configuration file, logs connection lifecycle events and optionally:
//   - echoes every received chunk back to its sender
//   - writes a protocol log readable with linkmq-log
//   - serves Prometheus metrics
//   - advertises its listeners over mDNS and connects to discovered peers
//
// Usage:
//
//	linkmq-node [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-listen list          Listen address, may be repeated
//	-connect list         Address to keep connected, may be repeated
//	-tls                  Use TLS for -listen and -connect addresses
//	-tls-cert string      Certificate file (PEM)
//	-tls-key string       Private key file (PEM)
//	-tls-ca string        Trusted CA bundle (PEM)
//	-tls-verify string    Peer verification: none, optional, required
//	-reconnect duration   Reconnect interval (default 3s)
//	-echo                 Echo received data
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-capture int          Payload bytes kept per data event in the protocol log
//	-metrics string       Metrics listen address
//	-advertise            Advertise listeners over mDNS
//	-instance string      mDNS instance name (default host name)
//	-discover             Connect to peers found over mDNS
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Echo server
//	linkmq-node -listen :4000 -echo
//
//	# TLS echo server advertised on the local network
//	linkmq-node -listen :4443 -tls -tls-cert node.crt -tls-key node.key -echo -advertise
//
//	# Node described by a file, with metrics
//	linkmq-node -config /etc/linkmq/node.yaml -metrics 127.0.0.1:9100
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/linkmq/linkmq-go/pkg/cert"
	"github.com/linkmq/linkmq-go/pkg/config"
	"github.com/linkmq/linkmq-go/pkg/discovery"
	"github.com/linkmq/linkmq-go/pkg/link"
	"github.com/linkmq/linkmq-go/pkg/log"
	"github.com/linkmq/linkmq-go/pkg/metrics"
)

// addrList collects a repeatable address flag.
type addrList []string

func (a *addrList) String() string { return strings.Join(*a, ",") }

func (a *addrList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*a = append(*a, s)
		}
	}
	return nil
}

// Flags holds the command-line options.
type Flags struct {
	ConfigFile  string
	Listen      addrList
	Connect     addrList
	TLS         bool
	TLSCert     string
	TLSKey      string
	TLSCA       string
	TLSVerify   string
	Reconnect   time.Duration
	Echo        bool
	ProtocolLog string
	Capture     int
	Metrics     string
	Advertise   bool
	Instance    string
	Discover    bool
	LogLevel    string
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.Var(&flags.Listen, "listen", "Listen address, may be repeated")
	flag.Var(&flags.Connect, "connect", "Address to keep connected, may be repeated")
	flag.BoolVar(&flags.TLS, "tls", false, "Use TLS for -listen and -connect addresses")
	flag.StringVar(&flags.TLSCert, "tls-cert", "", "Certificate file (PEM)")
	flag.StringVar(&flags.TLSKey, "tls-key", "", "Private key file (PEM)")
	flag.StringVar(&flags.TLSCA, "tls-ca", "", "Trusted CA bundle (PEM)")
	flag.StringVar(&flags.TLSVerify, "tls-verify", "", "Peer verification: none, optional, required")
	flag.DurationVar(&flags.Reconnect, "reconnect", 0, "Reconnect interval (default 3s)")
	flag.BoolVar(&flags.Echo, "echo", false, "Echo received data")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	flag.IntVar(&flags.Capture, "capture", 0, "Payload bytes kept per data event in the protocol log")
	flag.StringVar(&flags.Metrics, "metrics", "", "Metrics listen address")
	flag.BoolVar(&flags.Advertise, "advertise", false, "Advertise listeners over mDNS")
	flag.StringVar(&flags.Instance, "instance", "", "mDNS instance name (default host name)")
	flag.BoolVar(&flags.Discover, "discover", false, "Connect to peers found over mDNS")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default \"info\")")
}

func main() {
	flag.Parse()

	cfg, err := buildConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, logger); err != nil {
		logger.Error("node failed", "error", err)
		os.Exit(1)
	}
}

// buildConfig loads the configuration file, if any, and applies the flags
// on top of it.
func buildConfig(f Flags) (*config.Config, error) {
	cfg := &config.Config{}
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var tlsCfg *link.TLSConfig
	if f.TLS {
		tlsCfg = &link.TLSConfig{
			CertFile: f.TLSCert,
			KeyFile:  f.TLSKey,
			CAFile:   f.TLSCA,
			Verify:   link.VerifyMode(f.TLSVerify),
		}
	}
	for _, a := range f.Listen {
		cfg.Listeners = append(cfg.Listeners, config.Listener{Address: a, TLS: tlsCfg})
	}
	for _, a := range f.Connect {
		cfg.Connectors = append(cfg.Connectors, config.Connector{Address: a, TLS: tlsCfg})
	}

	if f.Reconnect != 0 {
		cfg.Loop.ReconnectInterval = f.Reconnect
	}
	if f.Capture != 0 {
		cfg.Loop.CaptureBytes = f.Capture
	}
	if f.Echo {
		cfg.Echo = true
	}
	if f.ProtocolLog != "" {
		cfg.ProtocolLog = f.ProtocolLog
	}
	if f.Metrics != "" {
		cfg.MetricsAddress = f.Metrics
	}
	if f.Advertise {
		cfg.Discovery.Advertise = true
	}
	if f.Instance != "" {
		cfg.Discovery.Instance = f.Instance
	}
	if f.Discover {
		cfg.Discovery.Browse = true
		if cfg.Discovery.TLS == nil {
			cfg.Discovery.TLS = tlsCfg
		}
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if len(cfg.Listeners) == 0 && len(cfg.Connectors) == 0 && !cfg.Discovery.Browse {
		return nil, fmt.Errorf("%w: nothing to do, give -listen, -connect, -discover or -config", config.ErrInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks []log.Logger

	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer fl.Close()
		sinks = append(sinks, fl)
		logger.Info("protocol logging", "path", fl.Path())
	}

	if cfg.MetricsAddress != "" {
		collector := metrics.NewCollector("linkmq")
		exporter, err := metrics.NewExporter(collector, logger)
		if err != nil {
			return err
		}
		addr, err := exporter.Start(cfg.MetricsAddress)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = exporter.Shutdown(sctx)
		}()
		sinks = append(sinks, collector)
		logger.Info("metrics endpoint", "address", addr.String())
	}

	var plog log.Logger
	if len(sinks) > 0 {
		plog = log.NewMultiLogger(sinks...)
	}

	n, err := newNode(cfg, logger, plog)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.close(); err != nil {
			logger.Warn("cleanup", "error", err)
		}
	}()

	bound, err := n.open()
	if err != nil {
		return err
	}
	logger.Info("link ready", "backend", n.link.Backend(), "listeners", len(bound), "connectors", len(cfg.Connectors))

	if cfg.Discovery.Advertise || cfg.Discovery.Browse {
		nodeID := localNodeID(cfg, logger)
		if cfg.Discovery.Advertise {
			adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
			defer adv.StopAll()
			advertise(adv, cfg, bound, nodeID, logger)
		}
		if cfg.Discovery.Browse {
			browser := discovery.NewBrowser(discovery.BrowserConfig{IgnoreNodeID: nodeID})
			defer browser.Stop()
			go browse(ctx, browser, cfg.Discovery.BrowseTimeout, n, logger)
		}
	}

	err = n.run(ctx)
	logger.Info("shutting down")
	return err
}

// localNodeID derives the node ID from the first listener certificate, or
// picks a random one.
func localNodeID(cfg *config.Config, logger *slog.Logger) string {
	for _, l := range cfg.Listeners {
		if l.TLS == nil || l.TLS.CertFile == "" {
			continue
		}
		c, err := cert.ReadCertFile(l.TLS.CertFile)
		if err != nil {
			logger.Warn("cannot read listener certificate", "path", l.TLS.CertFile, "error", err)
			break
		}
		id, err := discovery.NodeIDFromCertificate(c)
		if err == nil {
			return id
		}
	}
	return discovery.RandomNodeID()
}

func advertise(adv *discovery.Advertiser, cfg *config.Config, bound []netip.AddrPort, nodeID string, logger *slog.Logger) {
	instance := cfg.Discovery.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}
	for i, ap := range bound {
		name := instance
		if len(bound) > 1 {
			name = instance + "-" + strconv.Itoa(int(ap.Port()))
		}
		info := &discovery.ServiceInfo{
			Instance: name,
			Port:     ap.Port(),
			NodeID:   nodeID,
			TLS:      cfg.Listeners[i].TLS != nil,
		}
		if err := adv.Advertise(info); err != nil {
			logger.Warn("mDNS advertise failed", "instance", name, "error", err)
			continue
		}
		logger.Info("advertising", "instance", name, "port", ap.Port(), "node", nodeID)
	}
}

// browse feeds discovered peers to the node until ctx is done or the
// browse timeout expires.
func browse(ctx context.Context, b *discovery.Browser, timeout time.Duration, n *node, logger *slog.Logger) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	found, err := b.Browse(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("mDNS browse failed", "error", err)
		}
		return
	}
	for svc := range found {
		n.addPeer(svc)
	}
}
