//go:build unix

// Package wakeup provides a pollable descriptor that other goroutines use to
// interrupt a blocking readiness wait.
//
// Signal may be called from any goroutine and never blocks. Any number of
// signals between two Drain calls collapse into a single readable event.
package wakeup

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by Signal and Drain after Close.
var ErrClosed = errors.New("wakeup: closed")

// Bell is a self-signalling descriptor backed by an eventfd or a pipe.
type Bell struct {
	mu     sync.RWMutex
	rfd    int
	wfd    int
	kind   string
	closed bool
}

// New creates a Bell, preferring eventfd and falling back to a pipe.
func New() (*Bell, error) {
	if b, err := newEventfd(); err == nil {
		return b, nil
	}
	return NewPipe()
}

// NewPipe creates a pipe-backed Bell.
func NewPipe() (*Bell, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, fmt.Errorf("set nonblock: %w", err)
		}
	}
	return &Bell{rfd: fds[0], wfd: fds[1], kind: "pipe"}, nil
}

// FD returns the descriptor to register for readability.
func (b *Bell) FD() int {
	return b.rfd
}

// Kind names the backing mechanism ("eventfd" or "pipe").
func (b *Bell) Kind() string {
	return b.kind
}

// Signal makes FD readable. A full pipe or saturated counter already means
// a pending signal, so EAGAIN is not an error.
func (b *Bell) Signal() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for {
		_, err := unix.Write(b.wfd, b.token())
		switch {
		case err == nil, errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			return fmt.Errorf("wakeup signal: %w", err)
		}
	}
}

// Drain consumes all pending signals. It must only be called by the goroutine
// that polls FD.
func (b *Bell) Drain() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	var buf [64]byte
	for {
		n, err := unix.Read(b.rfd, buf[:])
		switch {
		case errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		case err != nil:
			return fmt.Errorf("wakeup drain: %w", err)
		case n == 0:
			return nil
		}
	}
}

// Close releases the descriptors. Concurrent Signal calls either complete
// before Close or return ErrClosed.
func (b *Bell) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	err := unix.Close(b.rfd)
	if b.wfd != b.rfd {
		if werr := unix.Close(b.wfd); err == nil {
			err = werr
		}
	}
	return err
}

var (
	pipeToken    = []byte{1}
	eventfdToken = []byte{1, 0, 0, 0, 0, 0, 0, 0}
)

func (b *Bell) token() []byte {
	if b.kind == "eventfd" {
		return eventfdToken
	}
	return pipeToken
}
