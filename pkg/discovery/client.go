package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultScanTimeout bounds a single browse round.
const DefaultScanTimeout = 3 * time.Second

// Resolver answers a DNS-SD browse for one service type.
type Resolver interface {
	Resolve(ctx context.Context, serviceType string) ([]Announcement, error)
}

// Scanner turns network announcements into devkit Device records.
type Scanner struct {
	resolver     Resolver
	timeout      time.Duration
	versionCheck bool
	log          zerolog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithResolver replaces the default zeroconf resolver.
func WithResolver(r Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

// WithTimeout sets how long each scan listens for answers.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithVersionCheck drops devices whose txtvers differs from CompatibleTextVersion.
// Off by default: devkits have been seen advertising values that compare unequal
// to "1" even though they print as "1".
func WithVersionCheck(enabled bool) Option {
	return func(s *Scanner) { s.versionCheck = enabled }
}

// WithLogger sets the scanner logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// NewScanner creates a scanner. Without options it browses with zeroconf.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		resolver: ZeroconfResolver{},
		timeout:  DefaultScanTimeout,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanDevices performs one browse and returns the compatible devkits found,
// in discovery order.
func (s *Scanner) ScanDevices(ctx context.Context) ([]Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	announcements, err := s.resolver.Resolve(scanCtx, ServiceType)
	if err != nil {
		return nil, &DiscoveryError{Op: "resolve", Err: err}
	}

	s.log.Debug().Int("count", len(announcements)).Msg("announcements received")

	devices := make([]Device, 0, len(announcements))
	for _, ann := range announcements {
		device, ok := s.deviceFromAnnouncement(ann)
		if !ok {
			continue
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func (s *Scanner) deviceFromAnnouncement(ann Announcement) (Device, bool) {
	device := Device{
		DisplayName: ann.DisplayName,
		Address:     ann.Address,
		ServiceName: ann.DisplayName + "." + ServiceType,
	}

	record, ok := ann.Services[device.ServiceName]
	if !ok {
		s.log.Debug().Str("name", ann.DisplayName).Msg("no devkit service record, skipping")
		return Device{}, false
	}
	if len(record.Properties) == 0 || record.Properties[0] == nil {
		s.log.Debug().Str("name", ann.DisplayName).Msg("devkit service without properties, skipping")
		return Device{}, false
	}

	props := record.Properties[0]
	device.Settings = props[TxtSettings]
	device.Login = props[TxtLogin]
	device.Devkit1 = props[TxtDevkit1]
	device.TxtVersion = props[TxtVersion]

	if !device.IsVersionCompatible() {
		if s.versionCheck {
			s.log.Warn().Str("name", device.DisplayName).Str("txtvers", device.TxtVersion).Msg("incompatible devkit, skipping")
			return Device{}, false
		}
		s.log.Debug().Str("name", device.DisplayName).Str("txtvers", device.TxtVersion).Msg("txtvers mismatch ignored")
	}

	s.log.Debug().
		Str("name", device.DisplayName).
		Str("address", device.Address).
		Str("login", device.Login).
		Msg("devkit found")

	return device, true
}

// ZeroconfResolver browses the local network with grandcat/zeroconf.
type ZeroconfResolver struct{}

// Resolve browses until ctx is done and groups the answers per service instance.
func (ZeroconfResolver) Resolve(ctx context.Context, serviceType string) ([]Announcement, error) {
	resolver, err := zeroconf.NewResolver()
	if err != nil {
		return nil, err
	}

	service, domain := splitServiceType(serviceType)
	entries := make(chan *zeroconf.ServiceEntry)

	var announcements []Announcement

	// zeroconf closes entries once the browse context ends.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		announcements = collectEntries(entries, serviceType)
		return nil
	})
	g.Go(func() error {
		if err := resolver.Browse(gctx, service, domain, entries); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return announcements, nil
}

// collectEntries reads until entries is closed, keeping the first answer of
// every service instance.
func collectEntries(entries <-chan *zeroconf.ServiceEntry, serviceType string) []Announcement {
	var announcements []Announcement
	seen := make(map[string]bool)
	for entry := range entries {
		if entry == nil {
			continue
		}
		key := entry.ServiceInstanceName()
		if seen[key] {
			continue
		}
		seen[key] = true
		announcements = append(announcements, announcementFromEntry(entry, serviceType))
	}
	return announcements
}

func announcementFromEntry(entry *zeroconf.ServiceEntry, serviceType string) Announcement {
	return Announcement{
		DisplayName: entry.Instance,
		Address:     entryAddress(entry),
		Services: map[string]ServiceRecord{
			entry.Instance + "." + serviceType: {
				Name:       entry.Instance,
				Port:       entry.Port,
				Properties: []map[string]string{ParseTxt(entry.Text)},
			},
		},
	}
}

// entryAddress prefers a routable IPv4 address, skipping link-local ones.
func entryAddress(entry *zeroconf.ServiceEntry) string {
	for _, ip := range entry.AddrIPv4 {
		ip4 := ip.To4()
		if ip4 != nil && !(ip4[0] == 169 && ip4[1] == 254) {
			return ip4.String()
		}
	}
	for _, ip := range entry.AddrIPv6 {
		if !ip.IsLinkLocalUnicast() {
			return ip.String()
		}
	}
	return strings.TrimSuffix(entry.HostName, ".")
}

// splitServiceType turns "_svc._tcp.local." into ("_svc._tcp", "local.").
func splitServiceType(serviceType string) (string, string) {
	trimmed := strings.TrimSuffix(serviceType, ".")
	idx := strings.LastIndex(trimmed, ".")
	if idx < 0 {
		return trimmed, "local."
	}
	return trimmed[:idx], trimmed[idx+1:] + "."
}
