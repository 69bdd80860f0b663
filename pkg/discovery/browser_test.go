package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(instance string, v4 ...string) *zeroconf.ServiceEntry {
	entry := &zeroconf.ServiceEntry{}
	entry.Instance = instance
	entry.HostName = "node.local."
	entry.Port = 4000
	entry.Text = []string{"id=0123456789abcdef", "tls=1", "v=1.0"}
	for _, a := range v4 {
		entry.AddrIPv4 = append(entry.AddrIPv4, net.ParseIP(a))
	}
	return entry
}

func TestEntryToService(t *testing.T) {
	b := NewBrowser(BrowserConfig{})
	entry := testEntry("node-a", "192.168.1.10")
	entry.AddrIPv6 = []net.IP{net.ParseIP("fd00::10")}

	svc := b.entryToService(entry)
	require.NotNil(t, svc)
	assert.Equal(t, "node-a", svc.Instance)
	assert.Equal(t, uint16(4000), svc.Port)
	assert.Equal(t, "0123456789abcdef", svc.NodeID)
	assert.True(t, svc.TLS)
	assert.Equal(t, []string{"192.168.1.10", "fd00::10"}, svc.Addresses)
	assert.Equal(t, "192.168.1.10:4000", svc.Address())
}

func TestEntryToServiceFilters(t *testing.T) {
	entry := testEntry("node-a", "192.168.1.10")

	b := NewBrowser(BrowserConfig{IgnoreNodeID: "0123456789abcdef"})
	assert.Nil(t, b.entryToService(entry), "own node must be ignored")

	entry.Text = []string{"tls=0"}
	assert.Nil(t, NewBrowser(BrowserConfig{}).entryToService(entry), "entry without id must be dropped")
}

func TestServiceAddress(t *testing.T) {
	tests := []struct {
		svc  Service
		want string
	}{
		{Service{Host: "node.local.", Port: 1}, "node.local:1"},
		{Service{Host: "h", Port: 2, Addresses: []string{"fd00::1"}}, "[fd00::1]:2"},
		{Service{Host: "h", Port: 3, Addresses: []string{"fd00::1", "10.0.0.3"}}, "10.0.0.3:3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.svc.Address())
	}
}

func TestMergeRemoveAddresses(t *testing.T) {
	addrs := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, addrs)

	addrs = removeAddresses(addrs, testEntry("node-a", "10.0.0.1"))
	assert.Equal(t, []string{"10.0.0.2"}, addrs)
}

func TestBrowseStops(t *testing.T) {
	b := NewBrowser(BrowserConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	results, err := b.FindAll(ctx)
	require.NoError(t, err)
	for _, svc := range results {
		assert.True(t, ValidateID(svc.NodeID), "peer %s has invalid id", svc.Instance)
	}

	found, err := b.Browse(context.Background())
	require.NoError(t, err)
	b.Stop()
	select {
	case _, ok := <-found:
		for ok {
			_, ok = <-found
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Browse channel not closed after Stop")
	}

	_, err = b.Browse(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}
