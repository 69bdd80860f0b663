package discovery

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures advertising.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	// Empty string means all interfaces.
	Interface string

	// TTL overrides the record TTL.
	TTL time.Duration
}

// Advertiser announces listeners over mDNS.
type Advertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by instance
}

// NewAdvertiser creates an Advertiser.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	return &Advertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// interfaces returns the network interfaces to use, or nil for all.
func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise announces info, replacing an announcement of the same instance.
func (a *Advertiser) Advertise(info *ServiceInfo) error {
	if err := ValidateInstanceName(info.Instance); err != nil {
		return err
	}
	if !ValidateID(info.NodeID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, info.NodeID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.servers[info.Instance]; ok {
		old.Shutdown()
		delete(a.servers, info.Instance)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}
	server, err := zeroconf.Register(
		info.Instance,
		ServiceType,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(EncodeTXT(info)),
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", info.Instance, err)
	}
	a.servers[info.Instance] = server
	return nil
}

// Stop withdraws the announcement of instance.
func (a *Advertiser) Stop(instance string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, ok := a.servers[instance]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAdvertised, instance)
	}
	server.Shutdown()
	delete(a.servers, instance)
	return nil
}

// Instances returns the advertised instance names, sorted.
func (a *Advertiser) Instances() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.servers))
	for name := range a.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll withdraws every announcement.
func (a *Advertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, server := range a.servers {
		server.Shutdown()
		delete(a.servers, name)
	}
}
