package link

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/linkmq/linkmq-go/pkg/connection"
	"github.com/linkmq/linkmq-go/pkg/log"
	"github.com/linkmq/linkmq-go/pkg/poller"
	"github.com/linkmq/linkmq-go/pkg/wakeup"
)

// socket is a descriptor owned by the Link that is not a listener.
type socket struct {
	fd       int
	id       connection.ID
	state    connection.State
	security Security
	dir      log.Direction
	local    netip.AddrPort
	peer     netip.AddrPort

	// connector is set while the socket belongs to a connector.
	connector *connector

	fc        *fdConn
	tlsConn   *tls.Conn
	handshake *handshaker

	interest  poller.Interest
	sendArmed bool
	readPass  uint64
	// born is the loop pass that created the socket. Events polled in that
	// pass belong to an earlier owner of the descriptor.
	born uint64
}

func (s *socket) handshakeState() HandshakeState {
	if s.handshake == nil {
		return HandshakeNotApplicable
	}
	return s.handshake.state
}

type listener struct {
	fd   int
	addr netip.AddrPort
	tls  *tls.Config
}

type connector struct {
	addr     netip.AddrPort
	host     string
	interval time.Duration
	tls      *tls.Config
	sock     *socket
}

// Link multiplexes listeners, connectors and their connections on one
// goroutine. See the package documentation for the threading rules.
type Link struct {
	// Callbacks.
	OnConnect     Callback[func(id connection.ID)]
	OnDisconnect  Callback[func(id connection.ID)]
	OnRecv        Callback[func(id connection.ID, data []byte)]
	OnReadyToSend Callback[func(id connection.ID)]
	OnLoopPass    Callback[func()]

	cfg    Config
	logger *slog.Logger
	plog   log.Logger
	clock  clock.Clock

	poller poller.Poller
	bell   *wakeup.Bell
	conns  *connection.Registry
	plan   *connection.Scheduler[netip.AddrPort]

	sockets     map[int]*socket
	listeners   map[netip.AddrPort]*listener
	listenerFDs map[int]*listener
	connectors  map[netip.AddrPort]*connector
	pendingRead map[int]struct{}

	recvBuf []byte
	passNo  uint64

	running atomic.Bool
	stopReq atomic.Bool
	closed  bool
}

// New creates a Link. Zero Config fields take their defaults. Call Cleanup
// when done: TLS handshakes still in progress hold a goroutine until then.
func New(cfg Config) (*Link, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := cfg.Poller
	if p == nil {
		var err error
		if p, err = poller.New(); err != nil {
			return nil, fmt.Errorf("create poller: %w", err)
		}
	}
	bell, err := wakeup.New()
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create wakeup channel: %w", err)
	}
	if err := p.Register(bell.FD(), poller.Readable); err != nil {
		bell.Close()
		p.Close()
		return nil, fmt.Errorf("register wakeup channel: %w", err)
	}

	l := &Link{
		cfg:         cfg,
		logger:      cfg.Logger,
		plog:        cfg.ProtocolLogger,
		clock:       cfg.Clock,
		poller:      p,
		bell:        bell,
		conns:       connection.NewRegistry(),
		plan:        connection.NewScheduler[netip.AddrPort](),
		sockets:     make(map[int]*socket),
		listeners:   make(map[netip.AddrPort]*listener),
		listenerFDs: make(map[int]*listener),
		connectors:  make(map[netip.AddrPort]*connector),
		pendingRead: make(map[int]struct{}),
		recvBuf:     make([]byte, cfg.RecvBlockSize),
	}
	l.debug("link created", "poller", p.Backend(), "wakeup", bell.Kind())
	return l, nil
}

// AddListener starts accepting connections on address and returns the bound
// address, which carries the actual port when address asks for port 0.
// Listeners are keyed by their bound address.
func (l *Link) AddListener(address string, tlsCfg *TLSConfig) (netip.AddrPort, error) {
	if l.closed {
		return netip.AddrPort{}, ErrClosed
	}
	ap, _, err := resolve(address)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if _, ok := l.listeners[ap]; ok {
		return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrListenerExists, ap)
	}

	var serverTLS *tls.Config
	if tlsCfg != nil {
		if serverTLS, err = tlsCfg.ServerConfig(); err != nil {
			return netip.AddrPort{}, err
		}
	}

	fd, bound, err := listenSocket(ap)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if _, ok := l.listeners[bound]; ok {
		closeFD(fd)
		return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrListenerExists, bound)
	}
	if err := l.poller.Register(fd, poller.Readable); err != nil {
		closeFD(fd)
		return netip.AddrPort{}, err
	}

	ln := &listener{fd: fd, addr: bound, tls: serverTLS}
	l.listeners[bound] = ln
	l.listenerFDs[fd] = ln

	l.info("listening", "address", bound.String(), "tls", serverTLS != nil)
	l.emitState(nil, log.StateEntityListener, "", "LISTENING", "", bound)
	return bound, nil
}

// RemoveListener stops accepting on addr and closes the listening socket.
// Accepted connections stay open.
func (l *Link) RemoveListener(addr netip.AddrPort) error {
	ln, ok := l.listeners[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownListener, addr)
	}
	delete(l.listeners, addr)
	delete(l.listenerFDs, ln.fd)
	if err := l.poller.Unregister(ln.fd); err != nil && !errors.Is(err, poller.ErrNotRegistered) {
		return err
	}
	closeFD(ln.fd)

	l.info("listener removed", "address", ln.addr.String())
	l.emitState(nil, log.StateEntityListener, "LISTENING", "CLOSED", "", ln.addr)
	return nil
}

// AddConnector keeps a connection to address. The first attempt is made on
// the next loop pass; refused attempts and dropped connections are retried
// every interval (zero means Config.ReconnectInterval).
func (l *Link) AddConnector(address string, interval time.Duration, tlsCfg *TLSConfig) (netip.AddrPort, error) {
	if l.closed {
		return netip.AddrPort{}, ErrClosed
	}
	ap, host, err := resolve(address)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if _, ok := l.connectors[ap]; ok {
		return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrConnectorExists, ap)
	}
	if interval == 0 {
		interval = l.cfg.ReconnectInterval
	}
	if interval < 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: negative reconnect interval", ErrInvalidConfig)
	}

	var clientTLS *tls.Config
	if tlsCfg != nil {
		if clientTLS, err = tlsCfg.ClientConfig(host); err != nil {
			return netip.AddrPort{}, err
		}
	}

	l.connectors[ap] = &connector{addr: ap, host: host, interval: interval, tls: clientTLS}
	l.schedule(ap, time.Time{}, interval)
	l.info("connector added", "address", ap.String(), "interval", interval, "tls", clientTLS != nil)
	return ap, nil
}

// RemoveConnector cancels pending attempts for addr and forgets the
// connector. A connect still in progress is abandoned; an established
// connection stays open but is no longer reconnected.
func (l *Link) RemoveConnector(addr netip.AddrPort) error {
	c, ok := l.connectors[addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnector, addr)
	}
	delete(l.connectors, addr)
	if n := l.plan.Cancel(addr); n > 0 {
		l.emitSchedule(log.ScheduleCancelled, addr, time.Time{}, c.interval)
	}

	if s := c.sock; s != nil {
		c.sock = nil
		s.connector = nil
		if s.state == connection.StateConnecting {
			if err := l.closeSocket(s, "connector removed"); err != nil {
				return err
			}
		}
	}
	l.info("connector removed", "address", addr.String())
	return nil
}

// Send writes data to the connection in one non-blocking attempt and
// returns how many bytes were accepted. Zero with a nil error means the
// socket would block or the connection was closed because of the write;
// in the first case OnReadyToSend follows once the socket drains.
func (l *Link) Send(id connection.ID, data []byte) (int, error) {
	s, err := l.lookup(id)
	if err != nil {
		return 0, err
	}
	if s.state != connection.StateConnected {
		return 0, fmt.Errorf("%w: %s", ErrNotReady, id)
	}
	if len(data) == 0 {
		return 0, nil
	}
	if s.security == SecurityTLS {
		return l.sendTLS(s, data)
	}
	return l.sendPlain(s, data)
}

// Close shuts the connection down and closes its socket.
func (l *Link) Close(id connection.ID) error {
	s, err := l.lookup(id)
	if err != nil {
		return err
	}
	return l.closeSocket(s, "closed locally")
}

// Stop makes Run return after the current pass. It is safe to call from
// any goroutine and performs no cleanup.
func (l *Link) Stop() {
	l.stopReq.Store(true)
	l.WakeupPoll()
}

// WakeupPoll makes the current or next readiness wait return promptly.
// It is safe to call from any goroutine.
func (l *Link) WakeupPoll() {
	_ = l.bell.Signal()
}

// Cleanup closes every socket and forgets every listener and connector,
// then releases the poller and wakeup channel. OnDisconnect fires for live
// connections and unfinished TLS handshakes release their goroutines. The
// Link cannot be used afterwards.
func (l *Link) Cleanup() error {
	if l.running.Load() {
		return ErrRunning
	}
	if l.closed {
		return nil
	}

	var errs []error
	for addr := range l.connectors {
		errs = append(errs, l.RemoveConnector(addr))
	}
	for _, addr := range l.Listeners() {
		errs = append(errs, l.RemoveListener(addr))
	}
	for _, fd := range sortedKeys(l.sockets) {
		if s, ok := l.sockets[fd]; ok {
			errs = append(errs, l.closeSocket(s, "cleanup"))
		}
	}

	errs = append(errs, l.poller.Unregister(l.bell.FD()), l.bell.Close(), l.poller.Close())
	l.closed = true

	if n := len(l.sockets) + len(l.listeners) + len(l.listenerFDs) + len(l.connectors) +
		l.conns.Len() + l.plan.Len() + len(l.pendingRead); n != 0 {
		errs = append(errs, fmt.Errorf("%w: sockets=%d listeners=%d connectors=%d connections=%d planned=%d",
			ErrInconsistent, len(l.sockets), len(l.listeners), len(l.connectors), l.conns.Len(), l.plan.Len()))
	}
	return errors.Join(errs...)
}

// Connections returns the IDs of connections that completed OnConnect,
// sorted.
func (l *Link) Connections() []connection.ID {
	var ids []connection.ID
	for _, s := range l.sockets {
		if s.state == connection.StateConnected {
			ids = append(ids, s.id)
		}
	}
	slices.Sort(ids)
	return ids
}

// PeerAddr returns the remote address of a connection.
func (l *Link) PeerAddr(id connection.ID) (netip.AddrPort, error) {
	s, err := l.lookup(id)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return s.peer, nil
}

// LocalAddr returns the local address of a connection.
func (l *Link) LocalAddr(id connection.ID) (netip.AddrPort, error) {
	s, err := l.lookup(id)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return s.local, nil
}

// HandshakeState returns the TLS handshake state of a connection.
func (l *Link) HandshakeState(id connection.ID) (HandshakeState, error) {
	s, err := l.lookup(id)
	if err != nil {
		return HandshakeNotApplicable, err
	}
	return s.handshakeState(), nil
}

// ConnectionState returns the TLS state of a connection after its handshake.
func (l *Link) ConnectionState(id connection.ID) (tls.ConnectionState, bool) {
	s, err := l.lookup(id)
	if err != nil || s.tlsConn == nil || s.handshakeState() != HandshakeDone {
		return tls.ConnectionState{}, false
	}
	return s.tlsConn.ConnectionState(), true
}

// Listeners returns the bound listener addresses, sorted.
func (l *Link) Listeners() []netip.AddrPort {
	addrs := make([]netip.AddrPort, 0, len(l.listenerFDs))
	for _, ln := range l.listenerFDs {
		addrs = append(addrs, ln.addr)
	}
	slices.SortFunc(addrs, netip.AddrPort.Compare)
	return addrs
}

// Connectors returns the connector addresses, sorted.
func (l *Link) Connectors() []netip.AddrPort {
	addrs := make([]netip.AddrPort, 0, len(l.connectors))
	for a := range l.connectors {
		addrs = append(addrs, a)
	}
	slices.SortFunc(addrs, netip.AddrPort.Compare)
	return addrs
}

// PlannedConnects returns the pending connection attempts in due order.
func (l *Link) PlannedConnects() []connection.Plan[netip.AddrPort] {
	return l.plan.Plans()
}

// Backend names the readiness backend in use.
func (l *Link) Backend() string {
	return l.poller.Backend()
}

func (l *Link) lookup(id connection.ID) (*socket, error) {
	fd, err := l.conns.Socket(id)
	if err != nil {
		return nil, err
	}
	s, ok := l.sockets[fd]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, id)
	}
	return s, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
