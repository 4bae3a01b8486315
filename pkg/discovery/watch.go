package discovery

import (
	"context"
	"time"
)

// DeviceScanner is the on-demand scan the watcher drives.
type DeviceScanner interface {
	ScanDevices(ctx context.Context) ([]Device, error)
}

// Watch scans once immediately and then on every tick of interval, handing each
// result to fn, until ctx is cancelled. Scans never overlap: a slow scan delays
// the next tick instead of stacking.
func Watch(ctx context.Context, scanner DeviceScanner, interval time.Duration, fn func([]Device, error)) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(scanner.ScanDevices(ctx))

	for {
		select {
		case <-ticker.C:
			fn(scanner.ScanDevices(ctx))
		case <-ctx.Done():
			return
		}
	}
}
