//go:build linux

package poller

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// New returns an epoll poller, or the poll(2) emulation when the kernel does
// not provide epoll.
func New() (Poller, error) {
	p, err := NewEpoll(DefaultMaxEvents)
	if errors.Is(err, unix.ENOSYS) {
		return NewEmulated(), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// EpollPoller is the Linux epoll(7) backend.
type EpollPoller struct {
	epfd     int
	interest map[int]Interest
	raw      []unix.EpollEvent
	events   []Event
	closed   bool
}

// NewEpoll creates an epoll instance returning at most maxEvents per wait.
func NewEpoll(maxEvents int) (*EpollPoller, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &EpollPoller{
		epfd:     epfd,
		interest: make(map[int]Interest),
		raw:      make([]unix.EpollEvent, maxEvents),
		events:   make([]Event, 0, maxEvents),
	}, nil
}

// Register adds fd to the epoll set.
func (p *EpollPoller) Register(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.interest[fd]; ok {
		return fmt.Errorf("%w: fd %d", ErrRegistered, fd)
	}
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	p.interest[fd] = interest
	return nil
}

// Modify changes the interest set of fd.
func (p *EpollPoller) Modify(fd int, interest Interest) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return fmt.Errorf("%w: fd %d", ErrNotRegistered, fd)
	}
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl mod fd %d: %w", fd, err)
	}
	p.interest[fd] = interest
	return nil
}

// Unregister removes fd from the epoll set.
func (p *EpollPoller) Unregister(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return fmt.Errorf("%w: fd %d", ErrNotRegistered, fd)
	}
	delete(p.interest, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		// Closing a descriptor removes it from the set already.
		if errors.Is(err, unix.EBADF) || errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Poll waits for events.
func (p *EpollPoller) Poll(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrClosed
	}
	n, err := unix.EpollWait(p.epfd, p.raw, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("epoll_wait: %w", err)
	}
	p.events = p.events[:0]
	for i := 0; i < n; i++ {
		p.events = append(p.events, Event{
			FD:   int(p.raw[i].Fd),
			Mask: epollMask(p.raw[i].Events),
		})
	}
	return p.events, nil
}

// Backend returns "epoll".
func (p *EpollPoller) Backend() string { return "epoll" }

// Close closes the epoll descriptor.
func (p *EpollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.interest = nil
	return unix.Close(p.epfd)
}

func epollEvents(interest Interest) uint32 {
	var ev uint32
	if interest&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if interest&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func epollMask(ev uint32) Mask {
	var m Mask
	if ev&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		m |= MaskReadable
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= MaskWritable
	}
	if ev&unix.EPOLLERR != 0 {
		m |= MaskError
	}
	if ev&unix.EPOLLHUP != 0 {
		m |= MaskHangup
	}
	return m
}

var _ Poller = (*EpollPoller)(nil)
