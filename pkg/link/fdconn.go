package link

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// wouldBlockError is reported by fdConn.Read when the socket has no data.
// crypto/tls keeps a connection usable after temporary net.Errors.
type wouldBlockError struct{}

func (wouldBlockError) Error() string   { return "operation would block" }
func (wouldBlockError) Timeout() bool   { return true }
func (wouldBlockError) Temporary() bool { return true }

var errWouldBlock net.Error = wouldBlockError{}

// fdConn is the net.Conn a tls.Conn runs over. It never blocks: reads report
// errWouldBlock and writes are queued until the socket accepts them. While a
// handshake runs, park is set and reads wait for the loop instead.
type fdConn struct {
	fd     int
	local  net.Addr
	remote net.Addr
	out    []byte
	park   func() error
	closed bool
}

func newFDConn(fd int, local, remote net.Addr) *fdConn {
	return &fdConn{fd: fd, local: local, remote: remote}
}

func (c *fdConn) Read(b []byte) (int, error) {
	if c.closed {
		return 0, net.ErrClosed
	}
	for {
		n, err := unix.Read(c.fd, b)
		switch {
		case err == nil && n == 0 && len(b) > 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			if c.park == nil {
				return 0, errWouldBlock
			}
			if perr := c.park(); perr != nil {
				return 0, perr
			}
		default:
			return 0, os.NewSyscallError("read", err)
		}
	}
}

func (c *fdConn) Write(b []byte) (int, error) {
	if c.closed {
		return 0, net.ErrClosed
	}
	c.out = append(c.out, b...)
	if err := c.flush(); err != nil {
		return 0, err
	}
	return len(b), nil
}

// flush writes queued bytes until the socket would block.
func (c *fdConn) flush() error {
	for len(c.out) > 0 {
		n, err := unix.Write(c.fd, c.out)
		switch {
		case err == nil:
			c.out = c.out[:copy(c.out, c.out[n:])]
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			return nil
		default:
			return os.NewSyscallError("write", err)
		}
	}
	return nil
}

func (c *fdConn) pending() int {
	return len(c.out)
}

// Close marks the adapter closed; the descriptor belongs to the Link.
func (c *fdConn) Close() error {
	c.closed = true
	return nil
}

func (c *fdConn) LocalAddr() net.Addr  { return c.local }
func (c *fdConn) RemoteAddr() net.Addr { return c.remote }

func (c *fdConn) SetDeadline(time.Time) error      { return nil }
func (c *fdConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fdConn) SetWriteDeadline(time.Time) error { return nil }

var _ net.Conn = (*fdConn)(nil)
