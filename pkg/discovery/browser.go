package discovery

import (
	"context"
	"net"
	"slices"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browsing.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	// IgnoreNodeID drops announcements carrying this id, typically the
	// local node's own.
	IgnoreNodeID string
}

// Browser finds advertised listeners.
type Browser struct {
	config BrowserConfig

	mu      sync.Mutex
	cancels []context.CancelFunc
	stopped bool
}

// NewBrowser creates a Browser.
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// Browse delivers each discovered listener once, until ctx is done or Stop
// is called. The channel is closed when browsing ends.
func (b *Browser) Browse(ctx context.Context) (<-chan *Service, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, context.Canceled
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	// Process entries, aggregating addresses per instance.
	go func() {
		defer close(out)
		services := make(map[string]*Service)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := b.entryToService(entry)
				if svc == nil {
					continue
				}
				if existing, found := services[svc.Instance]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.Instance] = svc
				delivered := *svc
				delivered.Addresses = slices.Clone(svc.Addresses)
				select {
				case out <- &delivered:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// FindAll browses until ctx is done and returns the listeners found.
func (b *Browser) FindAll(ctx context.Context) ([]*Service, error) {
	found, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	results := []*Service{}
	for svc := range found {
		results = append(results, svc)
	}
	return results, nil
}

// Stop ends all browse operations.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryToService converts a zeroconf entry, returning nil for entries that
// are not valid announcements or come from the ignored node.
func (b *Browser) entryToService(entry *zeroconf.ServiceEntry) *Service {
	svc := &Service{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
	}
	if err := DecodeTXT(StringsToTXTRecords(entry.Text), svc); err != nil {
		return nil
	}
	if b.config.IgnoreNodeID != "" && svc.NodeID == b.config.IgnoreNodeID {
		return nil
	}

	svc.Addresses = make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		svc.Addresses = append(svc.Addresses, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		svc.Addresses = append(svc.Addresses, ip.String())
	}
	return svc
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	for _, addr := range added {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses drops the addresses of entry from addresses.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	gone := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		gone[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		gone[ip.String()] = true
	}
	return slices.DeleteFunc(addresses, func(a string) bool { return gone[a] })
}
