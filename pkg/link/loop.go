package link

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/linkmq/linkmq-go/pkg/connection"
	"github.com/linkmq/linkmq-go/pkg/log"
	"github.com/linkmq/linkmq-go/pkg/poller"
)

// Run drives the loop until Stop is called, ctx is done, or a bound in rc is
// reached. Each pass waits for readiness, dispatches every reported event,
// services buffered TLS input, makes due connection attempts and then
// fires OnLoopPass. A Stop issued while no loop is running makes the next
// Run return before its first wait.
//
// Run returns nil when it stops for any of those reasons. It returns an
// error when the poller fails, when a connect fails with anything other than
// a refusal, or on a socket error that is not known to affect only a single
// connection.
func (l *Link) Run(ctx context.Context, rc RunConfig) error {
	if l.closed {
		return ErrClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer func() {
		l.stopReq.Store(false)
		l.running.Store(false)
	}()

	stopWake := context.AfterFunc(ctx, l.WakeupPoll)
	defer stopWake()

	timeout := rc.PollTimeout
	if timeout <= 0 {
		timeout = l.cfg.PollTimeout
	}
	var deadline time.Time
	if rc.MaxRuntime > 0 {
		deadline = l.clock.Now().Add(rc.MaxRuntime)
	}
	remaining := rc.MaxEvents

	l.debug("loop started", "poll_timeout", timeout, "max_events", rc.MaxEvents, "max_runtime", rc.MaxRuntime)
	defer l.debug("loop stopped", "passes", l.passNo)

	if err := l.dealConnects(); err != nil {
		return err
	}
	for {
		if l.stopReq.Load() || ctx.Err() != nil {
			return nil
		}
		wait := timeout
		if len(l.pendingRead) > 0 {
			wait = 0
		}
		if !deadline.IsZero() {
			left := deadline.Sub(l.clock.Now())
			if left <= 0 {
				return nil
			}
			wait = min(wait, left)
		}

		events, err := l.poller.Poll(wait)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		l.passNo++

		for _, ev := range events {
			if err := l.dispatch(ev); err != nil {
				return err
			}
		}
		if err := l.serviceBuffered(); err != nil {
			return err
		}
		if err := l.dealConnects(); err != nil {
			return err
		}
		l.OnLoopPass.each(func(fn func()) { fn() })

		if rc.MaxEvents > 0 && len(events) > 0 {
			if remaining--; remaining <= 0 {
				return nil
			}
		}
	}
}

func (l *Link) dispatch(ev poller.Event) error {
	if ev.FD == l.bell.FD() {
		return l.bell.Drain()
	}
	if ln, ok := l.listenerFDs[ev.FD]; ok {
		return l.accept(ln)
	}
	s, ok := l.sockets[ev.FD]
	if !ok || s.born == l.passNo {
		return nil
	}

	switch s.state {
	case connection.StateConnecting:
		if ev.Mask.Failed() {
			return l.refused(s, socketError(s.fd))
		}
		if ev.Mask.Has(poller.MaskWritable) {
			return l.finishConnect(s)
		}
		return nil
	case connection.StateHandshaking:
		return l.stepHandshake(s)
	}

	if ev.Mask.Has(poller.MaskError) {
		return l.closeSocket(s, "socket error: "+errString(socketError(s.fd)))
	}
	if ev.Mask.Has(poller.MaskWritable) {
		if err := l.handleWritable(s); err != nil {
			return err
		}
	}
	if ev.Mask.Has(poller.MaskReadable) && l.alive(s) {
		if err := l.handleRecv(s); err != nil {
			return err
		}
	}
	// Readable hangups are closed by the read that sees EOF.
	if ev.Mask.Has(poller.MaskHangup) && !ev.Mask.Has(poller.MaskReadable) && l.alive(s) {
		return l.closeSocket(s, "socket error: "+errString(socketError(s.fd)))
	}
	return nil
}

// alive reports whether s is still the socket registered under its fd.
// Callbacks may close a connection and reuse its descriptor.
func (l *Link) alive(s *socket) bool {
	return l.sockets[s.fd] == s
}

func (l *Link) accept(ln *listener) error {
	fd, sa, err := unix.Accept(ln.fd)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) {
			return nil
		}
		l.warn("accept failed", "listener", ln.addr.String(), "error", err)
		l.emitError(nil, log.LayerLink, "accept", err, ln.addr)
		return nil
	}
	if err := prepare(fd); err != nil {
		closeFD(fd)
		l.warn("accept failed", "listener", ln.addr.String(), "error", err)
		l.emitError(nil, log.LayerLink, "accept", err, ln.addr)
		return nil
	}

	s := &socket{
		fd:    fd,
		state: connection.StateConnecting,
		dir:   log.DirectionIn,
		local: localAddr(fd),
		peer:  addrPort(sa),
		born:  l.passNo,
	}
	if err := l.adopt(s, poller.Readable); err != nil {
		return err
	}
	l.debug("accepted", "conn_id", s.id, "listener", ln.addr.String(), "peer", s.peer.String())
	l.emitState(s, log.StateEntityConnection, "", "ACCEPTED", "", netip.AddrPort{})

	if ln.tls != nil {
		return l.startHandshake(s, func(fc *fdConn) *tls.Conn { return tls.Server(fc, ln.tls) })
	}
	return l.establish(s)
}

// adopt watches s if it is not yet watched and assigns its id.
func (l *Link) adopt(s *socket, interest poller.Interest) error {
	if _, ok := l.sockets[s.fd]; !ok {
		if err := l.poller.Register(s.fd, interest); err != nil {
			closeFD(s.fd)
			return fmt.Errorf("register %d: %w", s.fd, err)
		}
		s.interest = interest
		l.sockets[s.fd] = s
	}
	id, err := l.conns.Add(s.fd)
	if err != nil {
		delete(l.sockets, s.fd)
		_ = l.poller.Unregister(s.fd)
		closeFD(s.fd)
		return err
	}
	s.id = id
	return nil
}

func (l *Link) establish(s *socket) error {
	s.state = connection.StateConnected
	if err := l.setInterest(s, poller.Readable); err != nil {
		return l.fail(s, log.LayerSocket, "modify", err)
	}
	l.connected(s)
	return nil
}

func (l *Link) connected(s *socket) {
	l.info("connected", "conn_id", s.id, "peer", s.peer.String(), "security", s.security)
	l.emitState(s, log.StateEntityConnection, "", "CONNECTED", s.security.String(), netip.AddrPort{})
	l.OnConnect.each(func(fn func(connection.ID)) { fn(s.id) })
}

func (l *Link) startHandshake(s *socket, wrap func(*fdConn) *tls.Conn) error {
	s.state = connection.StateHandshaking
	s.security = SecurityTLS
	s.fc = newFDConn(s.fd, tcpAddr(s.local), tcpAddr(s.peer))
	s.tlsConn = wrap(s.fc)
	s.handshake = newHandshaker(s.tlsConn, s.fc)
	l.emitState(s, log.StateEntityHandshake, "", HandshakeInProgress.String(), "", netip.AddrPort{})
	return l.stepHandshake(s)
}

func (l *Link) stepHandshake(s *socket) error {
	state, err := s.handshake.step()
	switch state {
	case HandshakeInProgress:
		if err := l.setInterest(s, l.tlsInterest(s)); err != nil {
			return l.fail(s, log.LayerTLS, "modify", err)
		}
		return nil

	case HandshakeDone:
		cs := s.tlsConn.ConnectionState()
		l.emitState(s, log.StateEntityHandshake, HandshakeInProgress.String(), HandshakeDone.String(),
			tls.VersionName(cs.Version), netip.AddrPort{})
		s.state = connection.StateConnected
		if err := l.setInterest(s, l.tlsInterest(s)); err != nil {
			return l.fail(s, log.LayerTLS, "modify", err)
		}
		// The final flight may carry application data already decrypted
		// into the TLS buffer.
		l.pendingRead[s.fd] = struct{}{}
		l.connected(s)
		return nil

	default:
		if err == nil {
			err = errors.New("handshake failed")
		}
		l.warn("tls handshake failed", "conn_id", s.id, "peer", s.peer.String(), "error", err)
		l.emitError(s, log.LayerTLS, "handshake", err, netip.AddrPort{})
		l.emitState(s, log.StateEntityHandshake, HandshakeInProgress.String(), HandshakeFailed.String(),
			err.Error(), netip.AddrPort{})
		return l.closeSocket(s, "handshake failed")
	}
}

// tlsInterest watches writability while TLS records are queued.
func (l *Link) tlsInterest(s *socket) poller.Interest {
	if s.fc.pending() > 0 || s.sendArmed {
		return poller.ReadWrite
	}
	return poller.Readable
}

func (l *Link) handleWritable(s *socket) error {
	if s.security == SecurityTLS && s.fc.pending() > 0 {
		if err := s.fc.flush(); err != nil {
			return l.fail(s, log.LayerTLS, "send", err)
		}
		if s.fc.pending() > 0 {
			return nil
		}
	}
	if err := l.setInterest(s, poller.Readable); err != nil {
		return l.fail(s, log.LayerSocket, "modify", err)
	}
	if s.sendArmed {
		s.sendArmed = false
		l.OnReadyToSend.each(func(fn func(connection.ID)) { fn(s.id) })
	}
	return nil
}

func (l *Link) handleRecv(s *socket) error {
	s.readPass = l.passNo
	if s.security == SecurityTLS {
		return l.recvTLS(s)
	}
	for {
		n, err := unix.Read(s.fd, l.recvBuf)
		switch {
		case err == nil && n == 0:
			return l.closeSocket(s, "peer closed")
		case err == nil:
			l.deliver(s, l.recvBuf[:n])
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case isWouldBlock(err):
			return nil
		case isConnFatal(err):
			return l.fail(s, log.LayerSocket, "recv", os.NewSyscallError("read", err))
		default:
			l.emitError(s, log.LayerSocket, "recv", err, netip.AddrPort{})
			return os.NewSyscallError("read", err)
		}
	}
}

// recvTLS drains decrypted input until the socket would block or the
// receive buffer is full. A full buffer is revisited on the next pass
// without waiting for readiness.
func (l *Link) recvTLS(s *socket) error {
	var total int
	var rerr error
	for total < len(l.recvBuf) {
		n, err := s.tlsConn.Read(l.recvBuf[total:])
		total += n
		if err != nil {
			if !isWouldBlock(err) {
				rerr = err
			}
			break
		}
	}
	if total > 0 {
		l.deliver(s, l.recvBuf[:total])
		if !l.alive(s) {
			return nil
		}
	}

	switch {
	case errors.Is(rerr, io.EOF):
		return l.closeSocket(s, "peer closed")
	case rerr != nil:
		return l.fail(s, log.LayerTLS, "recv", rerr)
	}
	if total == len(l.recvBuf) {
		l.pendingRead[s.fd] = struct{}{}
	}
	if s.fc.pending() > 0 {
		if err := l.setInterest(s, poller.ReadWrite); err != nil {
			return l.fail(s, log.LayerSocket, "modify", err)
		}
	}
	return nil
}

func (l *Link) deliver(s *socket, data []byte) {
	l.emitData(s, log.DirectionIn, data)
	buf := bytes.Clone(data)
	l.OnRecv.each(func(fn func(connection.ID, []byte)) { fn(s.id, buf) })
}

// serviceBuffered reads TLS connections that may hold decrypted input the
// poller cannot report.
func (l *Link) serviceBuffered() error {
	for _, fd := range sortedKeys(l.pendingRead) {
		s, ok := l.sockets[fd]
		if !ok || s.state != connection.StateConnected {
			delete(l.pendingRead, fd)
			continue
		}
		if s.readPass == l.passNo {
			continue
		}
		delete(l.pendingRead, fd)
		if err := l.handleRecv(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) sendPlain(s *socket, data []byte) (int, error) {
	for {
		n, err := unix.Write(s.fd, data)
		switch {
		case err == nil:
			l.emitData(s, log.DirectionOut, data[:n])
			return n, l.armSend(s)
		case errors.Is(err, unix.EINTR):
			continue
		case isWouldBlock(err):
			return 0, l.armSend(s)
		case isConnFatal(err):
			return 0, l.fail(s, log.LayerSocket, "send", os.NewSyscallError("write", err))
		default:
			return 0, os.NewSyscallError("write", err)
		}
	}
}

func (l *Link) sendTLS(s *socket, data []byte) (int, error) {
	if s.fc.pending() > 0 {
		if err := s.fc.flush(); err != nil {
			return 0, l.fail(s, log.LayerTLS, "send", err)
		}
		if s.fc.pending() > 0 {
			return 0, l.armSend(s)
		}
	}
	chunk := data[:min(len(data), maxTLSWrite)]
	n, err := s.tlsConn.Write(chunk)
	if err != nil {
		return 0, l.fail(s, log.LayerTLS, "send", err)
	}
	l.emitData(s, log.DirectionOut, chunk[:n])
	return n, l.armSend(s)
}

// armSend requests OnReadyToSend once the socket is writable again.
func (l *Link) armSend(s *socket) error {
	s.sendArmed = true
	if err := l.setInterest(s, poller.ReadWrite); err != nil {
		return l.fail(s, log.LayerSocket, "modify", err)
	}
	return nil
}

func (l *Link) setInterest(s *socket, want poller.Interest) error {
	if s.interest == want {
		return nil
	}
	if err := l.poller.Modify(s.fd, want); err != nil {
		return fmt.Errorf("modify %d: %w", s.fd, err)
	}
	s.interest = want
	return nil
}

// fail records err and closes the connection it ended.
func (l *Link) fail(s *socket, layer log.Layer, op string, err error) error {
	l.warn("connection failed", "conn_id", s.id, "peer", s.peer.String(), "op", op, "error", err)
	l.emitError(s, layer, op, err, netip.AddrPort{})
	return l.closeSocket(s, op+": "+err.Error())
}

// dealConnects starts every planned attempt that is due.
func (l *Link) dealConnects() error {
	due := l.plan.DueNow(l.clock.Now(), l.connectInterval)
	for _, addr := range due {
		c, ok := l.connectors[addr]
		if !ok || c.sock != nil {
			continue
		}
		if err := l.connect(c); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) connectInterval(addr netip.AddrPort) time.Duration {
	if c, ok := l.connectors[addr]; ok {
		return c.interval
	}
	return l.cfg.ReconnectInterval
}

func (l *Link) connect(c *connector) error {
	l.emitSchedule(log.ScheduleAttempt, c.addr, time.Time{}, c.interval)
	fd, err := newSocket(family(c.addr))
	if err != nil {
		l.emitError(nil, log.LayerLink, "socket", err, c.addr)
		return fmt.Errorf("connect %s: %w", c.addr, err)
	}

	err = unix.Connect(fd, sockaddr(c.addr))
	switch {
	case err == nil, errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EINTR), errors.Is(err, unix.EALREADY):
	case errors.Is(err, unix.ECONNREFUSED):
		closeFD(fd)
		l.retryLater(c, "connect", err)
		return nil
	default:
		// Only refusals are retried; anything else ends the loop.
		closeFD(fd)
		l.emitError(nil, log.LayerLink, "connect", err, c.addr)
		return fmt.Errorf("connect %s: %w", c.addr, os.NewSyscallError("connect", err))
	}

	if err := l.poller.Register(fd, poller.Writable); err != nil {
		closeFD(fd)
		return fmt.Errorf("register %d: %w", fd, err)
	}
	s := &socket{
		fd:        fd,
		state:     connection.StateConnecting,
		dir:       log.DirectionOut,
		peer:      c.addr,
		connector: c,
		interest:  poller.Writable,
		born:      l.passNo,
	}
	l.sockets[fd] = s
	c.sock = s
	l.debug("connecting", "address", c.addr.String())
	l.emitState(nil, log.StateEntityConnector, "", "CONNECTING", "", c.addr)
	return nil
}

func (l *Link) finishConnect(s *socket) error {
	if err := socketError(s.fd); err != nil {
		return l.refused(s, err)
	}
	if err := l.adopt(s, poller.Writable); err != nil {
		return err
	}
	s.local = localAddr(s.fd)
	if peer := peerAddr(s.fd); peer.IsValid() {
		s.peer = peer
	}
	l.emitState(s, log.StateEntityConnection, "CONNECTING", "ESTABLISHED", "", netip.AddrPort{})

	if c := s.connector; c != nil && c.tls != nil {
		return l.startHandshake(s, func(fc *fdConn) *tls.Conn { return tls.Client(fc, c.tls) })
	}
	return l.establish(s)
}

// refused drops a connect attempt that failed before establishment.
func (l *Link) refused(s *socket, err error) error {
	delete(l.sockets, s.fd)
	uerr := l.poller.Unregister(s.fd)
	closeFD(s.fd)
	s.state = connection.StateClosed
	if c := s.connector; c != nil {
		c.sock = nil
		s.connector = nil
		l.retryLater(c, "connect", err)
	}
	if uerr != nil && !errors.Is(uerr, poller.ErrNotRegistered) {
		return uerr
	}
	return nil
}

func (l *Link) retryLater(c *connector, op string, err error) {
	if err == nil {
		err = unix.ECONNREFUSED
	}
	if errors.Is(err, unix.ECONNREFUSED) {
		l.debug("connection refused", "address", c.addr.String())
		l.emitSchedule(log.ScheduleRefused, c.addr, time.Time{}, c.interval)
	} else {
		l.warn("connect failed", "address", c.addr.String(), "error", err)
		l.emitError(nil, log.LayerLink, op, err, c.addr)
	}
	l.schedule(c.addr, l.clock.Now().Add(c.interval), c.interval)
}

func (l *Link) schedule(addr netip.AddrPort, due time.Time, interval time.Duration) {
	l.plan.Schedule(due, addr)
	l.emitSchedule(log.SchedulePlanned, addr, due, interval)
}

// closeSocket releases a socket in any state. OnDisconnect fires only for
// connections that completed OnConnect, and connectors plan a reconnect.
func (l *Link) closeSocket(s *socket, reason string) error {
	if !l.alive(s) {
		return nil
	}
	delete(l.sockets, s.fd)
	delete(l.pendingRead, s.fd)
	uerr := l.poller.Unregister(s.fd)

	switch s.handshakeState() {
	case HandshakeInProgress:
		s.handshake.abort()
	case HandshakeDone:
		_ = s.tlsConn.CloseWrite()
	}
	if s.fc != nil {
		s.fc.Close()
	}
	serr := unix.Shutdown(s.fd, unix.SHUT_RDWR)
	closeFD(s.fd)

	old := s.state
	s.state = connection.StateClosed
	if s.id != "" {
		l.conns.Remove(s.fd)
	}
	l.debug("closed", "conn_id", s.id, "peer", s.peer.String(), "reason", reason)
	l.emitState(s, log.StateEntityConnection, old.String(), s.state.String(), reason, netip.AddrPort{})

	if old == connection.StateConnected {
		l.OnDisconnect.each(func(fn func(connection.ID)) { fn(s.id) })
	}
	if c := s.connector; c != nil {
		s.connector = nil
		if c.sock == s {
			c.sock = nil
		}
		if l.connectors[c.addr] == c {
			l.schedule(c.addr, l.clock.Now().Add(c.interval), c.interval)
		}
	}

	if uerr != nil && !errors.Is(uerr, poller.ErrNotRegistered) {
		return uerr
	}
	if serr != nil && !errors.Is(serr, unix.ENOTCONN) {
		return os.NewSyscallError("shutdown", serr)
	}
	return nil
}

func closeFD(fd int) {
	_ = unix.Close(fd)
}

func errString(err error) string {
	if err == nil {
		return "hangup"
	}
	return err.Error()
}
