//go:build unix && !linux

package poller

// New returns the poll(2) emulation; epoll is Linux only.
func New() (Poller, error) {
	return NewEmulated(), nil
}
