// Package connection tracks connection identities and reconnection plans for
// the link event loop.
//
// This package provides:
//   - Registry: bidirectional mapping between sockets and connection IDs
//   - Scheduler: time-ordered list of planned connection attempts
//   - State: lifecycle state names used in logs and events
//
// # Connection IDs
//
// IDs are opaque strings of the form "<instance>-<sequence>". The instance
// prefix is taken from a random UUID when the Registry is created, so IDs from
// several processes stay distinct in merged protocol logs. The sequence never
// repeats within a Registry, even when socket descriptors are recycled.
//
// # Reconnection
//
// A connector holds at most one planned attempt. After a refused attempt or a
// lost connection the next attempt is planned at now + interval. Entries
// planned more than two intervals into the future are treated as due, which
// recovers from wall clock jumps without waiting out the skew.
//
// Neither type is safe for concurrent use; both belong to the loop goroutine.
package connection
