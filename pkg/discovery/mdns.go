package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by listener ID
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) (*MDNSAdvertiser, error) {
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}, nil
}

// getInterfaces returns the network interfaces to use for advertising.
// Returns nil to use all interfaces.
func (a *MDNSAdvertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts advertising info.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *ServiceInfo) error {
	if err := ValidateInstanceName(info.Instance); err != nil {
		return err
	}
	txt := TXTRecordsToStrings(EncodeTXT(info))
	if txtSize(txt) > MaxTXTRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidTXTRecord, txtSize(txt))
	}

	service, domain := info.Service, info.Domain
	if service == "" {
		service = ServiceType
	}
	if domain == "" {
		domain = Domain
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Stop existing for this listener if any
	if server, exists := a.servers[info.ID]; exists {
		server.Shutdown()
		delete(a.servers, info.ID)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Instance,
		service,
		domain,
		int(info.Port),
		txt,
		a.getInterfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", info.Instance, err)
	}

	a.servers[info.ID] = server
	return nil
}

// Update replaces the TXT records of an advertisement.
func (a *MDNSAdvertiser) Update(id string, info *ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[id]
	if !exists {
		return ErrNotFound
	}
	server.SetText(TXTRecordsToStrings(EncodeTXT(info)))
	return nil
}

// Stop stops the advertisement with the given ID.
func (a *MDNSAdvertiser) Stop(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.servers[id]
	if !exists {
		return ErrNotFound
	}
	server.Shutdown()
	delete(a.servers, id)
	return nil
}

// StopAll stops all advertisements.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, server := range a.servers {
		server.Shutdown()
		delete(a.servers, id)
	}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	Service string
	Domain  string
}

// MDNSBrowser finds announced listeners using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.Service == "" {
		config.Service = ServiceType
	}
	if config.Domain == "" {
		config.Domain = Domain
	}
	return &MDNSBrowser{config: config}
}

// Browse emits each listener once as it is found, with the addresses of
// the first interface that reported it. A listener that is removed and
// reappears is emitted again. The channel is closed when ctx is done.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Service, error) {
	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)

		services := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToService(entry)
				if svc == nil {
					continue
				}
				// Further interfaces report the same instance again.
				if _, found := services[svc.Instance]; found {
					continue
				}
				services[svc.Instance] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				delete(services, entry.Instance)

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, b.config.Service, b.config.Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func entryToService(entry *zeroconf.ServiceEntry) *Service {
	svc := &Service{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
	}
	if err := DecodeTXT(StringsToTXTRecords(entry.Text), svc); err != nil {
		return nil
	}
	for _, ip := range entry.AddrIPv4 {
		svc.Addresses = append(svc.Addresses, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		svc.Addresses = append(svc.Addresses, ip.String())
	}
	return svc
}

var _ Advertiser = (*MDNSAdvertiser)(nil)
