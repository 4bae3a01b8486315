package discovery

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/mdns"
)

// AnnounceInfo describes a devkit record to publish on the network.
type AnnounceInfo struct {
	Instance string
	Port     int
	Login    string
	Settings string
	Devkit1  string
	IPs      []net.IP
}

// Announcer publishes a devkit-compatible DNS-SD record. It lets a plain Linux
// box with SSH stand in for a devkit when testing the pipeline.
type Announcer struct {
	info   AnnounceInfo
	server *mdns.Server
}

// NewAnnouncer creates an announcer for info.
func NewAnnouncer(info AnnounceInfo) *Announcer {
	return &Announcer{info: info}
}

// TxtRecords returns the TXT strings published for the record.
func (a *Announcer) TxtRecords() []string {
	return []string{
		TxtVersion + "=" + CompatibleTextVersion,
		TxtLogin + "=" + a.info.Login,
		TxtSettings + "=" + a.info.Settings,
		TxtDevkit1 + "=" + a.info.Devkit1,
	}
}

// Start begins advertising.
func (a *Announcer) Start() error {
	if a.info.Instance == "" {
		a.info.Instance = Hostname()
	}
	if a.info.Port == 0 {
		a.info.Port = 32000
	}

	if len(a.info.IPs) == 0 {
		ips, err := localIPv4s()
		if err != nil {
			return fmt.Errorf("failed to get local IPs: %w", err)
		}
		a.info.IPs = ips
	}

	service, domain := splitServiceType(ServiceType)
	zone, err := mdns.NewMDNSService(
		a.info.Instance,
		service,
		domain,
		"",
		a.info.Port,
		a.info.IPs,
		a.TxtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("failed to start mDNS server: %w", err)
	}

	a.server = server
	return nil
}

// Stop stops advertising.
func (a *Announcer) Stop() error {
	if a.server != nil {
		return a.server.Shutdown()
	}
	return nil
}

// Run advertises until ctx is cancelled.
func (a *Announcer) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	return a.Stop()
}

// Hostname returns the local hostname.
func Hostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// localIPv4s returns the non-loopback IPv4 addresses of interfaces that are up.
func localIPv4s() ([]net.IP, error) {
	var ips []net.IP

	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() || ip.To4() == nil {
				continue
			}
			ips = append(ips, ip)
		}
	}

	return ips, nil
}
