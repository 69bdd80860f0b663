package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func decodeJSONLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterDataEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "c-1",
		Direction:    DirectionIn,
		Layer:        LayerSocket,
		Category:     CategoryData,
		Data:         &DataEvent{Size: 256},
	})

	entry := decodeJSONLine(t, &buf)
	if entry["conn_id"] != "c-1" {
		t.Errorf("conn_id: got %v", entry["conn_id"])
	}
	if entry["layer"] != "SOCKET" {
		t.Errorf("layer: got %v", entry["layer"])
	}
	if entry["size"] != float64(256) {
		t.Errorf("size: got %v", entry["size"])
	}
}

func TestSlogAdapterScheduleEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	adapter.Log(Event{
		Layer:    LayerLink,
		Category: CategorySchedule,
		Schedule: &ScheduleEvent{Action: ScheduleRefused, Address: "127.0.0.1:9"},
	})

	entry := decodeJSONLine(t, &buf)
	if entry["action"] != "REFUSED" || entry["address"] != "127.0.0.1:9" {
		t.Errorf("got %v", entry)
	}
	if _, ok := entry["conn_id"]; ok {
		t.Error("conn_id present for connection-less event")
	}
}

func TestSlogAdapterSkipsWhenDebugDisabled(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	adapter.Log(Event{ConnectionID: "c-1", Data: &DataEvent{Size: 1}})
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
