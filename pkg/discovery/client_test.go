package discovery

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	announcements []Announcement
	err           error
	gotType       string
}

func (f *fakeResolver) Resolve(_ context.Context, serviceType string) ([]Announcement, error) {
	f.gotType = serviceType
	return f.announcements, f.err
}

func devkitAnnouncement(name, addr string, props map[string]string) Announcement {
	return Announcement{
		DisplayName: name,
		Address:     addr,
		Services: map[string]ServiceRecord{
			name + "." + ServiceType: {Name: name, Port: 32000, Properties: []map[string]string{props}},
		},
	}
}

func TestScanDevices_ParsesProperties(t *testing.T) {
	resolver := &fakeResolver{announcements: []Announcement{
		devkitAnnouncement("steamdeck", "192.168.1.20", map[string]string{
			"settings": `{"SteamOS":"1"}`,
			"login":    "deck",
			"devkit1":  "devkit-1",
			"txtvers":  "1",
		}),
	}}

	scanner := NewScanner(WithResolver(resolver))
	devices, err := scanner.ScanDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)

	assert.Equal(t, ServiceType, resolver.gotType)

	d := devices[0]
	assert.Equal(t, "steamdeck", d.DisplayName)
	assert.Equal(t, "192.168.1.20", d.Address)
	assert.Equal(t, "steamdeck."+ServiceType, d.ServiceName)
	assert.Equal(t, `{"SteamOS":"1"}`, d.Settings)
	assert.Equal(t, "deck", d.Login)
	assert.Equal(t, "devkit-1", d.Devkit1)
	assert.Equal(t, "1", d.TxtVersion)
	assert.Equal(t, "deck@192.168.1.20", d.ID())
}

func TestScanDevices_SkipsMissingServiceRecord(t *testing.T) {
	resolver := &fakeResolver{announcements: []Announcement{
		{
			DisplayName: "printer",
			Address:     "192.168.1.5",
			Services: map[string]ServiceRecord{
				"printer._ipp._tcp.local.": {Properties: []map[string]string{{"login": "x"}}},
			},
		},
		devkitAnnouncement("deck", "192.168.1.20", map[string]string{"login": "deck"}),
		{DisplayName: "bare", Address: "192.168.1.6"},
	}}

	devices, err := NewScanner(WithResolver(resolver)).ScanDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "deck", devices[0].DisplayName)
}

func TestScanDevices_SkipsEmptyProperties(t *testing.T) {
	resolver := &fakeResolver{announcements: []Announcement{
		{
			DisplayName: "deck",
			Address:     "192.168.1.20",
			Services:    map[string]ServiceRecord{"deck." + ServiceType: {}},
		},
	}}

	devices, err := NewScanner(WithResolver(resolver)).ScanDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestScanDevices_UsesFirstPropertySet(t *testing.T) {
	ann := devkitAnnouncement("deck", "10.0.0.2", map[string]string{"login": "first"})
	rec := ann.Services["deck."+ServiceType]
	rec.Properties = append(rec.Properties, map[string]string{"login": "second"})
	ann.Services["deck."+ServiceType] = rec

	devices, err := NewScanner(WithResolver(&fakeResolver{announcements: []Announcement{ann}})).ScanDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "first", devices[0].Login)
}

func TestScanDevices_PreservesDiscoveryOrder(t *testing.T) {
	resolver := &fakeResolver{announcements: []Announcement{
		devkitAnnouncement("b", "10.0.0.2", map[string]string{"login": "deck"}),
		devkitAnnouncement("a", "10.0.0.1", map[string]string{"login": "deck"}),
	}}

	devices, err := NewScanner(WithResolver(resolver)).ScanDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "b", devices[0].DisplayName)
	assert.Equal(t, "a", devices[1].DisplayName)
}

func TestScanDevices_VersionMismatch(t *testing.T) {
	anns := []Announcement{
		devkitAnnouncement("old", "10.0.0.1", map[string]string{"login": "deck", "txtvers": "2"}),
		devkitAnnouncement("quoted", "10.0.0.2", map[string]string{"login": "deck", "txtvers": " \"1\"\x00"}),
	}

	t.Run("ignored by default", func(t *testing.T) {
		devices, err := NewScanner(WithResolver(&fakeResolver{announcements: anns})).ScanDevices(context.Background())
		require.NoError(t, err)
		assert.Len(t, devices, 2)
	})

	t.Run("enforced when enabled", func(t *testing.T) {
		scanner := NewScanner(WithResolver(&fakeResolver{announcements: anns}), WithVersionCheck(true))
		devices, err := scanner.ScanDevices(context.Background())
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "quoted", devices[0].DisplayName)
	})
}

func TestScanDevices_ResolverError(t *testing.T) {
	cause := errors.New("no multicast interface")
	_, err := NewScanner(WithResolver(&fakeResolver{err: cause})).ScanDevices(context.Background())
	require.Error(t, err)

	var derr *DiscoveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "resolve", derr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestWithTimeout_IgnoresNonPositive(t *testing.T) {
	s := NewScanner(WithTimeout(0))
	assert.Equal(t, DefaultScanTimeout, s.timeout)

	s = NewScanner(WithTimeout(time.Second))
	assert.Equal(t, time.Second, s.timeout)
}

func TestSplitServiceType(t *testing.T) {
	tests := []struct {
		in      string
		service string
		domain  string
	}{
		{"_steamos-devkit._tcp.local.", "_steamos-devkit._tcp", "local."},
		{"_steamos-devkit._tcp.local", "_steamos-devkit._tcp", "local."},
		{"_svc", "_svc", "local."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			service, domain := splitServiceType(tt.in)
			assert.Equal(t, tt.service, service)
			assert.Equal(t, tt.domain, domain)
		})
	}
}

func devkitEntry(instance string, port int, addrs ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, "_steamos-devkit._tcp", "local.")
	e.HostName = instance + ".local."
	e.Port = port
	e.Text = []string{"login=deck", "txtvers=1"}
	for _, a := range addrs {
		e.AddrIPv4 = append(e.AddrIPv4, net.ParseIP(a))
	}
	return e
}

func TestCollectEntries_ReadsUntilClosed(t *testing.T) {
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		entries <- devkitEntry("deck", 32000, "169.254.10.1", "192.168.1.20")
		entries <- nil
		entries <- devkitEntry("deck", 32001, "192.168.1.99")
		entries <- devkitEntry("ally", 32000)
		close(entries)
	}()

	got := collectEntries(entries, ServiceType)
	require.Len(t, got, 2)

	assert.Equal(t, "deck", got[0].DisplayName)
	assert.Equal(t, "192.168.1.20", got[0].Address, "link-local addresses are skipped")
	rec := got[0].Services["deck."+ServiceType]
	assert.Equal(t, 32000, rec.Port, "first answer per instance wins")
	assert.Equal(t, "deck", rec.Properties[0]["login"])

	assert.Equal(t, "ally", got[1].DisplayName)
	assert.Equal(t, "ally.local", got[1].Address)
}

type countingScanner struct {
	calls atomic.Int32
}

func (c *countingScanner) ScanDevices(context.Context) ([]Device, error) {
	c.calls.Add(1)
	return []Device{{DisplayName: "deck"}}, nil
}

func TestWatch_ScansImmediatelyAndOnTick(t *testing.T) {
	scanner := &countingScanner{}
	ctx, cancel := context.WithCancel(context.Background())

	results := make(chan []Device, 8)
	done := make(chan struct{})
	go func() {
		Watch(ctx, scanner, 10*time.Millisecond, func(d []Device, err error) {
			assert.NoError(t, err)
			select {
			case results <- d:
			default:
			}
		})
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case got := <-results:
			assert.Len(t, got, 1)
		case <-time.After(2 * time.Second):
			t.Fatal("Watch did not report a scan")
		}
	}

	cancel()
	<-done
	assert.GreaterOrEqual(t, scanner.calls.Load(), int32(2))
}
