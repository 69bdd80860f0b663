package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestEventCBORRoundTrip(t *testing.T) {
	code := 111
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	due := ts.Add(3 * time.Second)

	events := []Event{
		{
			Timestamp:    ts,
			ConnectionID: "a1b2c3d4-1",
			Direction:    DirectionIn,
			Layer:        LayerSocket,
			Category:     CategoryData,
			RemoteAddr:   "127.0.0.1:4000",
			Data:         &DataEvent{Size: 3, Data: []byte{1, 2, 3}},
		},
		{
			Timestamp:    ts,
			ConnectionID: "a1b2c3d4-2",
			Layer:        LayerTLS,
			Category:     CategoryState,
			StateChange: &StateChangeEvent{
				Entity:   StateEntityHandshake,
				OldState: "IN_PROGRESS",
				NewState: "DONE",
			},
		},
		{
			Timestamp: ts,
			Direction: DirectionOut,
			Layer:     LayerLink,
			Category:  CategorySchedule,
			Schedule: &ScheduleEvent{
				Action:   SchedulePlanned,
				Address:  "127.0.0.1:4000",
				Due:      due,
				Interval: 3 * time.Second,
			},
		},
		{
			Timestamp: ts,
			Layer:     LayerSocket,
			Category:  CategoryError,
			Error:     &ErrorEventData{Layer: LayerSocket, Message: "connection refused", Code: &code, Context: "connect"},
		},
	}

	for _, want := range events {
		data, err := EncodeEvent(want)
		if err != nil {
			t.Fatalf("EncodeEvent: %v", err)
		}
		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent: %v", err)
		}

		if !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("Timestamp: got %v, want %v", got.Timestamp, want.Timestamp)
		}
		if got.ConnectionID != want.ConnectionID || got.Layer != want.Layer || got.Category != want.Category {
			t.Errorf("header mismatch: got %+v, want %+v", got, want)
		}
		switch {
		case want.Data != nil:
			if got.Data == nil || !bytes.Equal(got.Data.Data, want.Data.Data) {
				t.Errorf("Data: got %+v", got.Data)
			}
		case want.StateChange != nil:
			if got.StateChange == nil || *got.StateChange != *want.StateChange {
				t.Errorf("StateChange: got %+v", got.StateChange)
			}
		case want.Schedule != nil:
			if got.Schedule == nil || !got.Schedule.Due.Equal(due) || got.Schedule.Interval != 3*time.Second {
				t.Errorf("Schedule: got %+v", got.Schedule)
			}
		case want.Error != nil:
			if got.Error == nil || got.Error.Code == nil || *got.Error.Code != code {
				t.Errorf("Error: got %+v", got.Error)
			}
		}
	}
}

func TestEventCBORUsesIntegerKeys(t *testing.T) {
	data, err := EncodeEvent(Event{ConnectionID: "x", Category: CategoryState})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}

	var m map[any]any
	if err := cbor.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for k := range m {
		if _, ok := k.(uint64); !ok {
			t.Errorf("key %v has type %T, want integer", k, k)
		}
	}
}

func TestDecodeAll(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, id := range []string{"c-1", "c-2", "c-3"} {
		if err := enc.Encode(Event{ConnectionID: id}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	events, err := DecodeAll(&buf)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(events) != 3 || events[2].ConnectionID != "c-3" {
		t.Errorf("got %+v", events)
	}
}
