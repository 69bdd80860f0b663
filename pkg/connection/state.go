package connection

// State represents the lifecycle state of a socket owned by the link.
type State uint8

const (
	// StateConnecting indicates a non-blocking connect is in progress.
	StateConnecting State = iota

	// StateHandshaking indicates a TLS handshake is in progress.
	StateHandshaking

	// StateConnected indicates an established connection.
	StateConnected

	// StateClosed indicates the socket has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
