package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tlsock/tlsock-go/pkg/transport"
)

// Advertiser provides mDNS service advertising capabilities.
type Advertiser interface {
	// Advertise starts advertising info. An existing advertisement with the
	// same ID is replaced.
	Advertise(ctx context.Context, info *ServiceInfo) error

	// Update replaces the TXT records of an advertisement.
	Update(id string, info *ServiceInfo) error

	// Stop stops the advertisement with the given ID.
	Stop(id string) error

	// StopAll stops all advertisements.
	StopAll()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       120 * time.Second,
	}
}

// AnnouncerConfig names the announced services.
type AnnouncerConfig struct {
	// Instance prefixes instance names. Empty uses "tlsock".
	Instance string

	Service string
	Domain  string
	Logger  *slog.Logger
}

// Announcer keeps the set of announced listeners in step with an
// Advertiser.
type Announcer struct {
	mu        sync.Mutex
	adv       Advertiser
	cfg       AnnouncerConfig
	logger    *slog.Logger
	announced map[string]*ServiceInfo
}

// NewAnnouncer creates an announcer over adv.
func NewAnnouncer(adv Advertiser, cfg AnnouncerConfig) *Announcer {
	if cfg.Instance == "" {
		cfg.Instance = "tlsock"
	}
	if cfg.Service == "" {
		cfg.Service = ServiceType
	}
	if cfg.Domain == "" {
		cfg.Domain = Domain
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		adv:       adv,
		cfg:       cfg,
		logger:    logger,
		announced: make(map[string]*ServiceInfo),
	}
}

// ListenerService describes a bound listener for announcement.
func ListenerService(l *transport.Listener, instance, service, domain string) (*ServiceInfo, error) {
	switch l.State() {
	case transport.ListenerBound, transport.ListenerAccepting:
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotBound, l.State())
	}

	cfg := l.Config()
	port, err := strconv.ParseUint(cfg.Port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("listener port %q: %w", cfg.Port, err)
	}

	name := fmt.Sprintf("%s-%s-%d", instance, cfg.Protocol, port)
	if cfg.Family == transport.FamilyIPv6 {
		name += "-v6"
	}
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}

	info := &ServiceInfo{
		ID:       l.ID(),
		Instance: name,
		Service:  service,
		Domain:   domain,
		Port:     uint16(port),
		Protocol: cfg.Protocol,
		Family:   cfg.Family.String(),
	}
	if ctx := l.Context(); ctx != nil {
		if certs := ctx.Config().Certificates; len(certs) > 0 && certs[0].Leaf != nil {
			info.Fingerprint = Fingerprint(certs[0].Leaf)
		}
	}
	return info, nil
}

// Announce advertises a bound listener.
func (a *Announcer) Announce(ctx context.Context, l *transport.Listener) error {
	info, err := ListenerService(l, a.cfg.Instance, a.cfg.Service, a.cfg.Domain)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.announced[info.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, info.ID)
	}
	if err := a.adv.Advertise(ctx, info); err != nil {
		return err
	}
	a.announced[info.ID] = info
	a.logger.Info("announced",
		slog.String("instance", info.Instance),
		slog.String("service", info.Service),
		slog.Int("port", int(info.Port)),
	)
	return nil
}

// Withdraw stops announcing the listener with the given ID.
func (a *Announcer) Withdraw(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, exists := a.announced[id]
	if !exists {
		return ErrNotFound
	}
	delete(a.announced, id)
	if err := a.adv.Stop(id); err != nil {
		return err
	}
	a.logger.Info("withdrawn", slog.String("instance", info.Instance))
	return nil
}

// Announced returns the IDs currently announced, sorted.
func (a *Announcer) Announced() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.announced))
	for id := range a.announced {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close withdraws everything.
func (a *Announcer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.announced = make(map[string]*ServiceInfo)
	a.adv.StopAll()
}
