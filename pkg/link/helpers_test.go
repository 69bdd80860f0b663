package link

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkmq/linkmq-go/pkg/cert"
	"github.com/linkmq/linkmq-go/pkg/log"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReconnectInterval = 50 * time.Millisecond
	cfg.PollTimeout = 5 * time.Millisecond
	return cfg
}

func newTestLink(t *testing.T, cfg Config) *Link {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := l.Cleanup(); err != nil {
			t.Errorf("Cleanup: %v", err)
		}
	})
	return l
}

// runUntil runs the loop until done reports true or timeout expires.
func runUntil(t *testing.T, l *Link, timeout time.Duration, done func() bool) {
	t.Helper()
	remove := l.OnLoopPass.Add(func() {
		if done() {
			l.Stop()
		}
	})
	defer remove()
	if err := l.Run(context.Background(), RunConfig{MaxRuntime: timeout}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done() {
		t.Fatalf("condition not reached within %v", timeout)
	}
}

// runFor runs the loop for d.
func runFor(t *testing.T, l *Link, d time.Duration) {
	t.Helper()
	if err := l.Run(context.Background(), RunConfig{MaxRuntime: d}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// closedPort returns a loopback address nothing listens on.
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// recorder collects protocol events. The loop runs on the test goroutine,
// so no locking is needed.
type recorder struct {
	events []log.Event
}

func (r *recorder) Log(ev log.Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) count(match func(log.Event) bool) int {
	n := 0
	for _, ev := range r.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func scheduled(action log.ScheduleAction) func(log.Event) bool {
	return func(ev log.Event) bool {
		return ev.Schedule != nil && ev.Schedule.Action == action
	}
}

func stateReached(entity log.StateEntity, state string) func(log.Event) bool {
	return func(ev log.Event) bool {
		return ev.StateChange != nil && ev.StateChange.Entity == entity && ev.StateChange.NewState == state
	}
}

// writeTestCert writes a self-signed loopback certificate and returns the
// certificate and key paths.
func writeTestCert(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	c, err := cert.GenerateSelfSigned(cert.SelfSignedOptions{
		Hosts: []string{"127.0.0.1", "localhost"},
		IsCA:  true,
	})
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	dir := t.TempDir()
	certPath = filepath.Join(dir, "node.crt")
	keyPath = filepath.Join(dir, "node.key")
	if err := cert.WriteKeyPair(c, certPath, keyPath); err != nil {
		t.Fatalf("WriteKeyPair: %v", err)
	}
	return certPath, keyPath
}
