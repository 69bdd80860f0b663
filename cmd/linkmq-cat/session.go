package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/linkmq/linkmq-go/pkg/connection"
	"github.com/linkmq/linkmq-go/pkg/link"
)

// session connects terminal input to a Link.
//
// Input lines arrive on another goroutine through submit; they are queued,
// the loop is woken and the queue is drained from OnLoopPass, so the Link is
// only ever touched by the loop goroutine.
type session struct {
	link   *link.Link
	out    io.Writer
	hexOut bool

	mu    sync.Mutex
	queue []string

	// pending is data Send did not accept yet, per connection.
	pending map[connection.ID][]byte
}

func newSession(l *link.Link, out io.Writer, hexOut bool) *session {
	s := &session{
		link:    l,
		out:     out,
		hexOut:  hexOut,
		pending: make(map[connection.ID][]byte),
	}
	l.OnConnect.Add(s.connected)
	l.OnDisconnect.Add(s.disconnected)
	l.OnRecv.Add(s.received)
	l.OnReadyToSend.Add(s.flush)
	l.OnLoopPass.Add(s.drain)
	return s
}

// submit queues a line typed by the user. Safe for concurrent use.
func (s *session) submit(line string) {
	s.mu.Lock()
	s.queue = append(s.queue, line)
	s.mu.Unlock()
	s.link.WakeupPoll()
}

func (s *session) drain() {
	s.mu.Lock()
	lines := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, line := range lines {
		s.handle(line)
	}
}

func (s *session) handle(line string) {
	if !strings.HasPrefix(line, "/") {
		s.broadcast([]byte(line + "\n"))
		return
	}

	parts := strings.Fields(line)
	switch parts[0] {
	case "/list":
		ids := s.link.Connections()
		if len(ids) == 0 {
			fmt.Fprintln(s.out, "* no connections")
		}
		for _, id := range ids {
			peer, _ := s.link.PeerAddr(id)
			fmt.Fprintf(s.out, "* %s %s\n", id, peer)
		}
	case "/close":
		if len(parts) != 2 {
			fmt.Fprintln(s.out, "* usage: /close <id>")
			return
		}
		if err := s.link.Close(connection.ID(parts[1])); err != nil {
			fmt.Fprintf(s.out, "* %v\n", err)
		}
	case "/quit":
		s.link.Stop()
	case "/help":
		fmt.Fprintln(s.out, "* lines are sent to every connection")
		fmt.Fprintln(s.out, "* /list, /close <id>, /quit")
	default:
		fmt.Fprintf(s.out, "* unknown command %s, try /help\n", parts[0])
	}
}

func (s *session) broadcast(data []byte) {
	ids := s.link.Connections()
	if len(ids) == 0 {
		fmt.Fprintln(s.out, "* not connected, line dropped")
		return
	}
	for _, id := range ids {
		if pending, ok := s.pending[id]; ok {
			s.pending[id] = append(pending, data...)
			continue
		}
		s.send(id, data)
	}
}

func (s *session) send(id connection.ID, data []byte) {
	n, err := s.link.Send(id, data)
	if err != nil {
		fmt.Fprintf(s.out, "* send to %s: %v\n", id, err)
		return
	}
	if n < len(data) {
		s.pending[id] = bytes.Clone(data[n:])
	}
}

func (s *session) flush(id connection.ID) {
	if pending, ok := s.pending[id]; ok {
		delete(s.pending, id)
		s.send(id, pending)
	}
}

func (s *session) connected(id connection.ID) {
	peer, _ := s.link.PeerAddr(id)
	fmt.Fprintf(s.out, "* connected %s %s\n", id, peer)
}

func (s *session) disconnected(id connection.ID) {
	delete(s.pending, id)
	fmt.Fprintf(s.out, "* disconnected %s\n", id)
}

func (s *session) received(id connection.ID, data []byte) {
	if s.hexOut {
		fmt.Fprintf(s.out, "%s: %s\n", id, hex.EncodeToString(data))
		return
	}
	fmt.Fprintf(s.out, "%s: %s", id, data)
	if !bytes.HasSuffix(data, []byte("\n")) {
		fmt.Fprintln(s.out)
	}
}
