package log

import "time"

// Event is a single protocol event. CBOR encoding uses integer keys.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID is empty for events not tied to a connection
	// (listeners, planned connects).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalAddr and RemoteAddr are "ip:port" strings.
	LocalAddr  string `cbor:"6,keyasint,omitempty"`
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Exactly one payload is set.
	Data        *DataEvent        `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Schedule    *ScheduleEvent    `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates data flow relative to the local process.
type Direction uint8

const (
	// DirectionIn is data or a connection coming from the peer.
	DirectionIn Direction = 0
	// DirectionOut is data or a connection initiated locally.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates where in the link an event was captured.
type Layer uint8

const (
	// LayerSocket is the raw TCP socket.
	LayerSocket Layer = 0
	// LayerTLS is the TLS record and handshake layer.
	LayerTLS Layer = 1
	// LayerLink is the multiplexer itself (listeners, connectors, scheduling).
	LayerLink Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerSocket:
		return "SOCKET"
	case LayerTLS:
		return "TLS"
	case LayerLink:
		return "LINK"
	default:
		return "UNKNOWN"
	}
}

// Category classifies events.
type Category uint8

const (
	// CategoryData is a payload transfer.
	CategoryData Category = 0
	// CategoryState is a lifecycle transition.
	CategoryState Category = 1
	// CategorySchedule is a reconnect plan change.
	CategorySchedule Category = 2
	// CategoryError is an error.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryData:
		return "DATA"
	case CategoryState:
		return "STATE"
	case CategorySchedule:
		return "SCHEDULE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DataEvent records a transfer of payload bytes.
type DataEvent struct {
	// Size is the number of bytes transferred.
	Size int `cbor:"1,keyasint"`

	// Data holds the bytes, possibly truncated. Nil when capture is disabled.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates Data is shorter than Size.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewDataEvent builds a DataEvent capturing at most limit bytes of data.
// A limit of zero records only the size.
func NewDataEvent(data []byte, limit int) *DataEvent {
	ev := &DataEvent{Size: len(data)}
	if limit <= 0 || len(data) == 0 {
		return ev
	}
	n := min(len(data), limit)
	ev.Data = append([]byte(nil), data[:n]...)
	ev.Truncated = n < len(data)
	return ev
}

// StateChangeEvent records a lifecycle transition.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	// StateEntityConnection is an accepted or outbound socket.
	StateEntityConnection StateEntity = 0
	// StateEntityListener is a listening socket.
	StateEntityListener StateEntity = 1
	// StateEntityConnector is a remote address kept connected.
	StateEntityConnector StateEntity = 2
	// StateEntityHandshake is a TLS handshake.
	StateEntityHandshake StateEntity = 3
)

// String returns the entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityListener:
		return "LISTENER"
	case StateEntityConnector:
		return "CONNECTOR"
	case StateEntityHandshake:
		return "HANDSHAKE"
	default:
		return "UNKNOWN"
	}
}

// ScheduleEvent records a change to the reconnect plan of a connector.
type ScheduleEvent struct {
	Action  ScheduleAction `cbor:"1,keyasint"`
	Address string         `cbor:"2,keyasint"`

	// Due is when the attempt is planned (Planned only).
	Due time.Time `cbor:"3,keyasint,omitempty"`

	// Interval is the connector's reconnect interval in nanoseconds.
	Interval time.Duration `cbor:"4,keyasint,omitempty"`
}

// ScheduleAction distinguishes schedule events.
type ScheduleAction uint8

const (
	// SchedulePlanned means an attempt was added to the plan.
	SchedulePlanned ScheduleAction = 0
	// ScheduleAttempt means a planned attempt is being made.
	ScheduleAttempt ScheduleAction = 1
	// ScheduleCancelled means pending attempts were dropped.
	ScheduleCancelled ScheduleAction = 2
	// ScheduleRefused means an attempt was refused by the peer.
	ScheduleRefused ScheduleAction = 3
)

// String returns the action name.
func (a ScheduleAction) String() string {
	switch a {
	case SchedulePlanned:
		return "PLANNED"
	case ScheduleAttempt:
		return "ATTEMPT"
	case ScheduleCancelled:
		return "CANCELLED"
	case ScheduleRefused:
		return "REFUSED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData records an error.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the errno value for system call failures.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context names the operation that failed ("accept", "recv", ...).
	Context string `cbor:"4,keyasint,omitempty"`
}
