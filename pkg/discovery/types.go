package discovery

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of link listeners.
	ServiceType = "_linkmq._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// BrowseTimeout is the default duration of a FindAll round.
	BrowseTimeout = 3 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// IDLength is the length of a node id in hex characters.
	IDLength = 16
)

// TXT record keys.
const (
	TXTKeyID      = "id"
	TXTKeyTLS     = "tls"
	TXTKeyVersion = "v"
)

// Errors.
var (
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidID           = errors.New("invalid node id")
	ErrInstanceNameTooLong = errors.New("invalid instance name")
	ErrNotAdvertised       = errors.New("instance not advertised")
)

// ServiceInfo describes a listener to advertise.
type ServiceInfo struct {
	// Instance is the DNS-SD instance name, unique on the network.
	Instance string

	// Port is the listener port.
	Port uint16

	// NodeID identifies the node across its listeners.
	NodeID string

	// TLS is set when the listener requires TLS.
	TLS bool
}

// Service is a discovered peer listener.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	NodeID    string
	TLS       bool
	Version   string
}

// Address returns a dialable "host:port", preferring IPv4 addresses. It
// falls back to the host name when no address was reported.
func (s *Service) Address() string {
	port := strconv.Itoa(int(s.Port))
	for _, a := range s.Addresses {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return net.JoinHostPort(a, port)
		}
	}
	if len(s.Addresses) > 0 {
		return net.JoinHostPort(s.Addresses[0], port)
	}
	return net.JoinHostPort(strings.TrimSuffix(s.Host, "."), port)
}
