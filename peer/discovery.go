package peer

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service agents advertise.
const ServiceType = "_collabtext._tcp"

// Found describes an agent seen on the local network.
type Found struct {
	Instance string
	Addr     net.IP
	Port     int
	DocID    string
}

// Discovery advertises this agent over mDNS and reports other agents.
type Discovery struct {
	instance string
	port     int
	docID    string
	logger   *zap.Logger
}

// NewDiscovery creates a Discovery for an agent serving docID on port.
func NewDiscovery(docID string, port int, logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	host, _ := os.Hostname()
	return &Discovery{
		instance: fmt.Sprintf("CollabText-%s", host),
		port:     port,
		docID:    docID,
		logger:   logger,
	}
}

// Run registers the service and browses for peers until ctx is done. Each
// discovered agent other than this one is passed to found.
func (d *Discovery) Run(ctx context.Context, found func(Found)) error {
	server, err := zeroconf.Register(d.instance, ServiceType, "local.", d.port, []string{"doc=" + d.docID}, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	defer server.Shutdown()
	d.logger.Info("mDNS service registered", zap.String("service", ServiceType), zap.Int("port", d.port))

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			f, ok := d.found(entry)
			if !ok {
				continue
			}
			d.logger.Info("mDNS discovered peer", zap.String("instance", f.Instance), zap.Stringer("addr", f.Addr), zap.Int("port", f.Port))
			if found != nil {
				found(f)
			}
		}
	}()
	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	<-ctx.Done()
	d.logger.Info("mDNS browsing finished")
	return nil
}

func (d *Discovery) found(entry *zeroconf.ServiceEntry) (Found, bool) {
	if entry.Instance == d.instance || len(entry.AddrIPv4) == 0 {
		return Found{}, false
	}
	f := Found{Instance: entry.Instance, Addr: entry.AddrIPv4[0], Port: entry.Port}
	for _, txt := range entry.Text {
		if doc, ok := strings.CutPrefix(txt, "doc="); ok {
			f.DocID = doc
		}
	}
	return f, true
}
