package link

import (
	"crypto/tls"
	"net"
)

// Security tags a connection as plaintext or TLS.
type Security uint8

const (
	SecurityPlain Security = iota
	SecurityTLS
)

// String returns the security name.
func (s Security) String() string {
	switch s {
	case SecurityPlain:
		return "PLAIN"
	case SecurityTLS:
		return "TLS"
	default:
		return "UNKNOWN"
	}
}

// HandshakeState is the TLS handshake progress of a connection.
type HandshakeState uint8

const (
	HandshakeNotApplicable HandshakeState = iota
	HandshakeInProgress
	HandshakeDone
	HandshakeFailed
)

// String returns the state name.
func (s HandshakeState) String() string {
	switch s {
	case HandshakeNotApplicable:
		return "NOT_APPLICABLE"
	case HandshakeInProgress:
		return "IN_PROGRESS"
	case HandshakeDone:
		return "DONE"
	case HandshakeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

type handshakeResult struct {
	done bool
	err  error
}

// handshaker advances a tls.Conn handshake one readiness event at a time.
//
// The handshake itself runs on its own goroutine, but strictly alternating
// with the loop: step resumes it and waits until it either needs more input
// (the socket returned EAGAIN) or finishes. The two sides never run at the
// same time, so fdConn needs no locking.
type handshaker struct {
	conn    *tls.Conn
	fc      *fdConn
	state   HandshakeState
	started bool
	yield   chan handshakeResult
	resume  chan struct{}
}

func newHandshaker(conn *tls.Conn, fc *fdConn) *handshaker {
	h := &handshaker{
		conn:   conn,
		fc:     fc,
		state:  HandshakeInProgress,
		yield:  make(chan handshakeResult, 1),
		resume: make(chan struct{}),
	}
	fc.park = h.park
	return h
}

// park runs on the handshake goroutine when the socket has no input.
func (h *handshaker) park() error {
	h.yield <- handshakeResult{}
	if _, ok := <-h.resume; !ok {
		return net.ErrClosed
	}
	return nil
}

func (h *handshaker) run() {
	err := h.conn.Handshake()
	h.yield <- handshakeResult{done: true, err: err}
}

// step flushes queued handshake bytes and runs the handshake until it
// blocks or completes.
func (h *handshaker) step() (HandshakeState, error) {
	if h.state != HandshakeInProgress {
		return h.state, nil
	}
	if err := h.fc.flush(); err != nil {
		h.abort()
		return h.state, err
	}

	if !h.started {
		h.started = true
		go h.run()
	} else {
		h.resume <- struct{}{}
	}

	res := <-h.yield
	if !res.done {
		return HandshakeInProgress, nil
	}
	h.fc.park = nil
	if res.err != nil {
		h.state = HandshakeFailed
		return h.state, res.err
	}
	if err := h.fc.flush(); err != nil {
		h.state = HandshakeFailed
		return h.state, err
	}
	h.state = HandshakeDone
	return h.state, nil
}

// abort stops an unfinished handshake and waits for its goroutine to exit,
// so the descriptor is not touched after the Link closes it.
func (h *handshaker) abort() {
	if h.state == HandshakeInProgress && h.started {
		close(h.resume)
		for res := range h.yield {
			if res.done {
				break
			}
		}
	}
	h.fc.park = nil
	h.state = HandshakeFailed
}
