package log

import "testing"

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DirectionIn", DirectionIn.String(), "IN"},
		{"DirectionOut", DirectionOut.String(), "OUT"},
		{"DirectionUnknown", Direction(99).String(), "UNKNOWN"},
		{"LayerSocket", LayerSocket.String(), "SOCKET"},
		{"LayerTLS", LayerTLS.String(), "TLS"},
		{"LayerLink", LayerLink.String(), "LINK"},
		{"LayerUnknown", Layer(99).String(), "UNKNOWN"},
		{"CategoryData", CategoryData.String(), "DATA"},
		{"CategoryState", CategoryState.String(), "STATE"},
		{"CategorySchedule", CategorySchedule.String(), "SCHEDULE"},
		{"CategoryError", CategoryError.String(), "ERROR"},
		{"CategoryUnknown", Category(99).String(), "UNKNOWN"},
		{"EntityConnection", StateEntityConnection.String(), "CONNECTION"},
		{"EntityListener", StateEntityListener.String(), "LISTENER"},
		{"EntityConnector", StateEntityConnector.String(), "CONNECTOR"},
		{"EntityHandshake", StateEntityHandshake.String(), "HANDSHAKE"},
		{"EntityUnknown", StateEntity(99).String(), "UNKNOWN"},
		{"Planned", SchedulePlanned.String(), "PLANNED"},
		{"Attempt", ScheduleAttempt.String(), "ATTEMPT"},
		{"Cancelled", ScheduleCancelled.String(), "CANCELLED"},
		{"Refused", ScheduleRefused.String(), "REFUSED"},
		{"ActionUnknown", ScheduleAction(99).String(), "UNKNOWN"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestNewDataEvent(t *testing.T) {
	data := []byte("hello world")

	ev := NewDataEvent(data, 0)
	if ev.Size != len(data) || ev.Data != nil || ev.Truncated {
		t.Errorf("size only: got %+v", ev)
	}

	ev = NewDataEvent(data, 5)
	if string(ev.Data) != "hello" || !ev.Truncated {
		t.Errorf("truncated: got %+v", ev)
	}

	ev = NewDataEvent(data, 64)
	if string(ev.Data) != "hello world" || ev.Truncated {
		t.Errorf("full: got %+v", ev)
	}

	// The capture must not alias the caller's buffer.
	data[0] = 'H'
	if ev.Data[0] != 'h' {
		t.Error("DataEvent aliases the source buffer")
	}
}
