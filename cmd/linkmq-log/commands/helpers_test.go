package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/linkmq/linkmq-go/pkg/log"
)

var testTime = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.llog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

// sessionEvents is a connector session: plan, connect, one exchange, drop.
func sessionEvents() []log.Event {
	ts := testTime
	return []log.Event{
		{
			Timestamp: ts, Direction: log.DirectionOut, Layer: log.LayerLink, Category: log.CategorySchedule,
			Schedule: &log.ScheduleEvent{Action: log.SchedulePlanned, Address: "127.0.0.1:4000", Due: ts, Interval: 3 * time.Second},
		},
		{
			Timestamp: ts.Add(time.Millisecond), ConnectionID: "3f2a9c1e-1", Direction: log.DirectionOut,
			Layer: log.LayerSocket, Category: log.CategoryState, RemoteAddr: "127.0.0.1:4000",
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, OldState: "CONNECTING", NewState: "ESTABLISHED"},
		},
		{
			Timestamp: ts.Add(2 * time.Millisecond), ConnectionID: "3f2a9c1e-1", Direction: log.DirectionOut,
			Layer: log.LayerSocket, Category: log.CategoryData, RemoteAddr: "127.0.0.1:4000",
			Data: log.NewDataEvent([]byte("ping"), 64),
		},
		{
			Timestamp: ts.Add(3 * time.Millisecond), ConnectionID: "3f2a9c1e-1", Direction: log.DirectionIn,
			Layer: log.LayerSocket, Category: log.CategoryData, RemoteAddr: "127.0.0.1:4000",
			Data: log.NewDataEvent([]byte("pong!"), 64),
		},
		{
			Timestamp: ts.Add(4 * time.Millisecond), ConnectionID: "3f2a9c1e-1", Direction: log.DirectionOut,
			Layer: log.LayerSocket, Category: log.CategoryError, RemoteAddr: "127.0.0.1:4000",
			Error: &log.ErrorEventData{Layer: log.LayerSocket, Message: "connection reset by peer", Context: "recv"},
		},
		{
			Timestamp: ts.Add(5 * time.Millisecond), ConnectionID: "3f2a9c1e-2", Direction: log.DirectionIn,
			Layer: log.LayerTLS, Category: log.CategoryState, RemoteAddr: "127.0.0.1:51234",
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityHandshake, NewState: "IN_PROGRESS"},
		},
	}
}
