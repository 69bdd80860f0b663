package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/linkmq/linkmq-go/pkg/config"
	"github.com/linkmq/linkmq-go/pkg/connection"
	"github.com/linkmq/linkmq-go/pkg/discovery"
	"github.com/linkmq/linkmq-go/pkg/link"
	"github.com/linkmq/linkmq-go/pkg/log"
)

// node runs a Link configured from a node file.
//
// Everything except addPeer runs on the loop goroutine.
type node struct {
	cfg    *config.Config
	link   *link.Link
	logger *slog.Logger

	// outbox holds echo data the socket did not accept yet.
	outbox map[connection.ID][]byte

	mu    sync.Mutex
	peers []*discovery.Service

	dialed map[string]bool
}

func newNode(cfg *config.Config, logger *slog.Logger, plog log.Logger) (*node, error) {
	lc := cfg.LinkConfig()
	lc.Logger = logger
	lc.ProtocolLogger = plog

	l, err := link.New(lc)
	if err != nil {
		return nil, err
	}

	n := &node{
		cfg:    cfg,
		link:   l,
		logger: logger,
		outbox: make(map[connection.ID][]byte),
		dialed: make(map[string]bool),
	}
	l.OnConnect.Add(n.connected)
	l.OnDisconnect.Add(n.disconnected)
	l.OnLoopPass.Add(n.drainPeers)
	if cfg.Echo {
		l.OnRecv.Add(n.echo)
		l.OnReadyToSend.Add(n.flush)
	}
	return n, nil
}

// open adds the configured listeners and connectors and returns the bound
// listener addresses.
func (n *node) open() ([]netip.AddrPort, error) {
	var bound []netip.AddrPort
	for _, lc := range n.cfg.Listeners {
		ap, err := n.link.AddListener(lc.Address, lc.TLS)
		if err != nil {
			return nil, err
		}
		n.logger.Info("listening", "address", ap.String(), "tls", lc.TLS != nil)
		bound = append(bound, ap)
	}
	for _, cc := range n.cfg.Connectors {
		ap, err := n.link.AddConnector(cc.Address, cc.ReconnectInterval, cc.TLS)
		if err != nil {
			return nil, err
		}
		n.dialed[cc.Address] = true
		n.logger.Info("connector added", "address", ap.String(), "tls", cc.TLS != nil)
	}
	return bound, nil
}

func (n *node) run(ctx context.Context) error {
	return n.link.Run(ctx, link.RunConfig{})
}

func (n *node) close() error {
	return n.link.Cleanup()
}

func (n *node) connected(id connection.ID) {
	peer, _ := n.link.PeerAddr(id)
	attrs := []any{"id", id, "peer", peer.String()}
	if cs, ok := n.link.ConnectionState(id); ok {
		attrs = append(attrs, "tls", tls.VersionName(cs.Version))
	}
	n.logger.Info("connected", attrs...)
}

func (n *node) disconnected(id connection.ID) {
	delete(n.outbox, id)
	n.logger.Info("disconnected", "id", id)
}

func (n *node) echo(id connection.ID, data []byte) {
	if pending, ok := n.outbox[id]; ok {
		n.outbox[id] = append(pending, data...)
		return
	}
	n.write(id, data)
}

func (n *node) flush(id connection.ID) {
	pending, ok := n.outbox[id]
	if !ok {
		return
	}
	delete(n.outbox, id)
	n.write(id, pending)
}

// write sends data and keeps whatever was not accepted for the next
// ready-to-send notification.
func (n *node) write(id connection.ID, data []byte) {
	sent, err := n.link.Send(id, data)
	if err != nil {
		n.logger.Warn("echo failed", "id", id, "error", err)
		return
	}
	if sent < len(data) {
		n.outbox[id] = bytes.Clone(data[sent:])
	}
}

// addPeer queues a discovered peer for the loop. Safe for concurrent use.
func (n *node) addPeer(svc *discovery.Service) {
	n.mu.Lock()
	n.peers = append(n.peers, svc)
	n.mu.Unlock()
	n.link.WakeupPoll()
}

// drainPeers adds a connector for every queued peer not connected yet.
func (n *node) drainPeers() {
	n.mu.Lock()
	peers := n.peers
	n.peers = nil
	n.mu.Unlock()

	for _, svc := range peers {
		address := svc.Address()
		if n.dialed[address] {
			continue
		}
		var tlsCfg *link.TLSConfig
		if svc.TLS {
			tlsCfg = n.cfg.Discovery.TLS
			if tlsCfg == nil {
				tlsCfg = &link.TLSConfig{}
			}
		}
		ap, err := n.link.AddConnector(address, 0, tlsCfg)
		if err != nil && !errors.Is(err, link.ErrConnectorExists) {
			n.logger.Warn("cannot connect to discovered peer", "instance", svc.Instance, "address", address, "error", err)
			continue
		}
		n.dialed[address] = true
		n.logger.Info("discovered peer", "instance", svc.Instance, "node", svc.NodeID, "address", ap.String())
	}
}
