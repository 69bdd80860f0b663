//go:build unix

package poller

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sys/unix"
)

// EmulatedPoller implements Poller on top of poll(2). The pollfd array is
// rebuilt lazily after registration changes.
type EmulatedPoller struct {
	interest map[int]Interest
	pollfds  []unix.PollFd
	dirty    bool
	events   []Event
	closed   bool
}

// NewEmulated creates a poll(2) based poller.
func NewEmulated() *EmulatedPoller {
	return &EmulatedPoller{interest: make(map[int]Interest)}
}

// Register starts watching fd.
func (p *EmulatedPoller) Register(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.interest[fd]; ok {
		return fmt.Errorf("%w: fd %d", ErrRegistered, fd)
	}
	p.interest[fd] = interest
	p.dirty = true
	return nil
}

// Modify changes the interest set of fd.
func (p *EmulatedPoller) Modify(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return fmt.Errorf("%w: fd %d", ErrNotRegistered, fd)
	}
	p.interest[fd] = interest
	p.dirty = true
	return nil
}

// Unregister stops watching fd.
func (p *EmulatedPoller) Unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return fmt.Errorf("%w: fd %d", ErrNotRegistered, fd)
	}
	delete(p.interest, fd)
	p.dirty = true
	return nil
}

// Poll waits for events.
func (p *EmulatedPoller) Poll(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if p.dirty {
		p.rebuild()
	}
	n, err := unix.Poll(p.pollfds, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	p.events = p.events[:0]
	if n == 0 {
		return p.events, nil
	}
	for i := range p.pollfds {
		pfd := &p.pollfds[i]
		if pfd.Revents == 0 {
			continue
		}
		p.events = append(p.events, Event{FD: int(pfd.Fd), Mask: pollMask(pfd.Revents)})
		pfd.Revents = 0
	}
	return p.events, nil
}

// Backend returns "poll".
func (p *EmulatedPoller) Backend() string { return "poll" }

// Close releases the poller state.
func (p *EmulatedPoller) Close() error {
	p.closed = true
	p.interest = nil
	p.pollfds = nil
	return nil
}

func (p *EmulatedPoller) rebuild() {
	fds := make([]int, 0, len(p.interest))
	for fd := range p.interest {
		fds = append(fds, fd)
	}
	slices.Sort(fds)

	p.pollfds = p.pollfds[:0]
	for _, fd := range fds {
		p.pollfds = append(p.pollfds, unix.PollFd{Fd: int32(fd), Events: pollEvents(p.interest[fd])})
	}
	p.dirty = false
}

func pollEvents(interest Interest) int16 {
	var ev int16
	if interest&Readable != 0 {
		ev |= unix.POLLIN
	}
	if interest&Writable != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func pollMask(rev int16) Mask {
	var m Mask
	if rev&(unix.POLLIN|unix.POLLPRI) != 0 {
		m |= MaskReadable
	}
	if rev&unix.POLLOUT != 0 {
		m |= MaskWritable
	}
	if rev&unix.POLLERR != 0 {
		m |= MaskError
	}
	if rev&(unix.POLLHUP|unix.POLLNVAL) != 0 {
		m |= MaskHangup
	}
	return m
}

var _ Poller = (*EmulatedPoller)(nil)
