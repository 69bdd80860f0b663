// Package poller provides level-triggered readiness notification for raw
// file descriptors.
//
// Two backends implement the same Poller contract:
//   - epoll on Linux
//   - a poll(2) based emulation everywhere else
//
// New picks the backend once at startup by probing for epoll. Callers never
// branch on the platform themselves.
//
//	p, err := poller.New()
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	_ = p.Register(fd, poller.Readable)
//	events, err := p.Poll(200 * time.Millisecond)
//
// A Poller is not safe for concurrent use. It is owned by a single event loop
// goroutine; other goroutines interrupt a blocking Poll through a wakeup
// descriptor (see package wakeup).
package poller
