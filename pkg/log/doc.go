// Package log provides structured protocol event capture for the link.
//
// It is separate from operational logging (slog). Operational logs are for
// humans; protocol events are a machine-readable trace of everything the
// event loop did to a socket: state transitions, bytes moved, planned
// reconnects and errors.
//
// # Basic Usage
//
//	// Development: print events through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append events to a file
//	fl, _ := log.NewFileLogger("/var/log/linkmq/node.llog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Every Event carries exactly one payload:
//   - DataEvent: bytes received or accepted by the kernel
//   - StateChangeEvent: connection, listener, connector or handshake transitions
//   - ScheduleEvent: reconnect attempts planned, started or cancelled
//   - ErrorEventData: socket, TLS and accept errors
//
// # File Format
//
// Log files are a stream of CBOR encoded events with integer map keys and use
// the .llog extension. The linkmq-log command views, filters and exports them.
package log
