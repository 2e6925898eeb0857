package peer

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
)

func TestDiscoveryFiltersEntries(t *testing.T) {
	d := NewDiscovery("doc-1", 8080, nil)

	self := zeroconf.NewServiceEntry(d.instance, ServiceType, "local.")
	self.AddrIPv4 = []net.IP{net.IPv4(10, 0, 0, 1)}
	_, ok := d.found(self)
	assert.False(t, ok)

	noAddr := zeroconf.NewServiceEntry("CollabText-other", ServiceType, "local.")
	_, ok = d.found(noAddr)
	assert.False(t, ok)

	other := zeroconf.NewServiceEntry("CollabText-other", ServiceType, "local.")
	other.AddrIPv4 = []net.IP{net.IPv4(10, 0, 0, 2)}
	other.Port = 8080
	other.Text = []string{"doc=doc-7"}
	f, ok := d.found(other)
	assert.True(t, ok)
	assert.Equal(t, Found{Instance: "CollabText-other", Addr: net.IPv4(10, 0, 0, 2), Port: 8080, DocID: "doc-7"}, f)
}
