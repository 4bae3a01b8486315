// Package discovery finds SteamOS devkits on the local network via mDNS/DNS-SD.
package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ServiceType is the DNS-SD service type advertised by SteamOS devkits.
const ServiceType = "_steamos-devkit._tcp.local."

// CompatibleTextVersion is the txtvers value this tool was written against.
const CompatibleTextVersion = "1"

// DefaultSSHPort is used when a device record carries no port.
const DefaultSSHPort = 22

// TXT record keys published by the devkit service.
const (
	TxtSettings = "settings"
	TxtLogin    = "login"
	TxtDevkit1  = "devkit1"
	TxtVersion  = "txtvers"
)

// Device is a discovered or paired devkit.
type Device struct {
	DisplayName string `json:"displayName"`
	Address     string `json:"address"`
	Port        int    `json:"port,omitempty"` // SSH port, 0 means DefaultSSHPort
	ServiceName string `json:"serviceName"`
	Settings    string `json:"settings"`
	Login       string `json:"login"`
	Devkit1     string `json:"devkit1"`
	TxtVersion  string `json:"txtVersion,omitempty"`
}

// ID returns the identifier used to select a deploy target.
func (d Device) ID() string {
	return d.Login + "@" + d.Address
}

// Equal reports whether two devices point at the same login on the same host.
func (d Device) Equal(other Device) bool {
	return d.Address == other.Address && d.Login == other.Login
}

// SSHAddress returns host:port for the device's SSH endpoint.
func (d Device) SSHAddress() string {
	port := d.Port
	if port <= 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(d.Address, strconv.Itoa(port))
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.DisplayName, d.ID())
}

// IsVersionCompatible compares the advertised txtvers with CompatibleTextVersion.
// Values are trimmed of whitespace, NUL bytes and quotes first.
func (d Device) IsVersionCompatible() bool {
	return normalizeTxt(d.TxtVersion) == CompatibleTextVersion
}

func normalizeTxt(s string) string {
	return strings.Trim(s, " \t\r\n\x00\"'")
}

// ServiceRecord is one resolved DNS-SD service on an announcing host.
// Properties holds every TXT property set the host published for it.
type ServiceRecord struct {
	Name       string
	Port       int
	Properties []map[string]string
}

// Announcement is one host answering the browse query.
type Announcement struct {
	DisplayName string
	Address     string
	Services    map[string]ServiceRecord
}

// DiscoveryError reports a failure of the underlying network query.
type DiscoveryError struct {
	Op  string
	Err error
}

func (e *DiscoveryError) Error() string {
	return "discovery " + e.Op + ": " + e.Err.Error()
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ParseTxt converts "key=value" TXT strings to a map. Keys without '=' map to "".
func ParseTxt(records []string) map[string]string {
	props := make(map[string]string, len(records))
	for _, txt := range records {
		key, value, _ := strings.Cut(txt, "=")
		if key == "" {
			continue
		}
		props[key] = value
	}
	return props
}

// ExcludePaired returns the scanned devices that are not already paired.
func ExcludePaired(scanned, paired []Device) []Device {
	out := make([]Device, 0, len(scanned))
	for _, d := range scanned {
		known := false
		for _, p := range paired {
			if d.Equal(p) {
				known = true
				break
			}
		}
		if !known {
			out = append(out, d)
		}
	}
	return out
}
