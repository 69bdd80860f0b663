package poller

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Interest is the set of readiness conditions a descriptor is watched for.
type Interest uint8

const (
	// Readable watches for incoming data, pending accepts or peer close.
	Readable Interest = 1 << iota
	// Writable watches for send buffer space or connect completion.
	Writable

	// ReadWrite watches for both conditions.
	ReadWrite = Readable | Writable
)

// String returns a short representation such as "RW".
func (i Interest) String() string {
	var b strings.Builder
	if i&Readable != 0 {
		b.WriteByte('R')
	}
	if i&Writable != 0 {
		b.WriteByte('W')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// Mask is the set of conditions reported for a ready descriptor.
type Mask uint8

const (
	// MaskReadable reports that a read will not block.
	MaskReadable Mask = 1 << iota
	// MaskWritable reports that a write will not block.
	MaskWritable
	// MaskError reports a pending socket error.
	MaskError
	// MaskHangup reports that the peer hung up or the descriptor is invalid.
	MaskHangup
)

// Has reports whether all bits of f are set.
func (m Mask) Has(f Mask) bool {
	return m&f == f
}

// Failed reports whether the error or hangup bit is set.
func (m Mask) Failed() bool {
	return m&(MaskError|MaskHangup) != 0
}

// String returns the names of the set bits joined by "|".
func (m Mask) String() string {
	var parts []string
	if m&MaskReadable != 0 {
		parts = append(parts, "IN")
	}
	if m&MaskWritable != 0 {
		parts = append(parts, "OUT")
	}
	if m&MaskError != 0 {
		parts = append(parts, "ERR")
	}
	if m&MaskHangup != 0 {
		parts = append(parts, "HUP")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Event is a single readiness notification.
type Event struct {
	FD   int
	Mask Mask
}

// Poller watches descriptors for readiness.
type Poller interface {
	// Register starts watching fd. Registering a watched fd fails with ErrRegistered.
	Register(fd int, interest Interest) error

	// Modify replaces the interest set of a watched fd.
	Modify(fd int, interest Interest) error

	// Unregister stops watching fd.
	Unregister(fd int) error

	// Poll waits up to timeout for readiness. A negative timeout waits
	// indefinitely. An interrupted wait returns no events and no error.
	// The returned slice is reused by the next call to Poll.
	Poll(timeout time.Duration) ([]Event, error)

	// Backend names the notification facility in use.
	Backend() string

	// Close releases the poller. Watched descriptors are not closed.
	Close() error
}

// Poller errors.
var (
	ErrRegistered    = errors.New("poller: descriptor already registered")
	ErrNotRegistered = errors.New("poller: descriptor not registered")
	ErrClosed        = errors.New("poller: closed")
)

// DefaultMaxEvents bounds the number of events returned by a single epoll wait.
const DefaultMaxEvents = 256

// timeoutMillis converts a wait duration to the millisecond argument of
// epoll_wait and poll, rounding up so short waits do not become busy loops.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}
