// Package discovery advertises link listeners over mDNS/DNS-SD and browses
// for peers.
//
// Nodes announce each listener as an instance of the _linkmq._tcp service in
// the local domain. The TXT record carries:
//
//   - id: node identifier (certificate fingerprint or random)
//   - tls: "1" when the listener requires TLS
//   - v: protocol version
//
// A Browser aggregates announcements per instance name, merging the
// addresses reported on different interfaces, so that each peer is delivered
// once.
package discovery
