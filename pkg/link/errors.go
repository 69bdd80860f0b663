package link

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/linkmq/linkmq-go/pkg/connection"
)

// Link errors.
var (
	ErrListenerExists    = errors.New("listener already exists")
	ErrUnknownListener   = errors.New("unknown listener")
	ErrConnectorExists   = errors.New("connector already exists")
	ErrUnknownConnector  = errors.New("unknown connector")
	ErrUnknownConnection = connection.ErrUnknownConnection
	ErrNotReady          = errors.New("connection handshake in progress")
	ErrRunning           = errors.New("link is running")
	ErrClosed            = errors.New("link is closed")
	ErrInvalidConfig     = errors.New("invalid link configuration")
	ErrInconsistent      = errors.New("link state not empty after cleanup")
)

// isWouldBlock reports a transient condition that readiness will clear.
func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, errWouldBlock)
}

// isConnFatal reports errors that end a single connection but not the loop.
func isConnFatal(err error) bool {
	for _, errno := range []unix.Errno{
		unix.ECONNRESET,
		unix.ENOTCONN,
		unix.ESHUTDOWN,
		unix.ECONNABORTED,
		unix.EPIPE,
		unix.EBADF,
		unix.ETIMEDOUT,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// errnoCode extracts the errno of a failed system call.
func errnoCode(err error) *int {
	var errno unix.Errno
	if errors.As(err, &errno) {
		code := int(errno)
		return &code
	}
	return nil
}
