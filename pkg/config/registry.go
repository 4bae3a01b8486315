// Package config persists paired devices and deploy settings for a project.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
)

const (
	// DirName is the per-project folder holding deploy state.
	DirName = ".deploy_to_steamos"
	// DevicesFile stores the paired devices.
	DevicesFile = "devices.json"
	// SettingsFile stores the deploy settings.
	SettingsFile = "settings.yaml"

	defaultDirPerm  = 0o755
	defaultFilePerm = 0o600
)

// ErrDeviceNotFound is returned when no paired device matches an identifier.
var ErrDeviceNotFound = errors.New("device not found")

// Dir returns the deploy state folder for a project root.
func Dir(projectPath string) string {
	return filepath.Join(projectPath, DirName)
}

type devicesFile struct {
	Devices []discovery.Device `json:"devices"`
}

// Registry is the set of paired devices, persisted as JSON.
type Registry struct {
	mu   sync.Mutex
	path string
}

// NewRegistry opens the registry stored in dir.
func NewRegistry(dir string) *Registry {
	return &Registry{path: filepath.Join(dir, DevicesFile)}
}

// Path returns the backing file.
func (r *Registry) Path() string {
	return r.path
}

func (r *Registry) load() ([]discovery.Device, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []discovery.Device{}, nil
		}
		return nil, err
	}

	var f devicesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", r.path, err)
	}
	if f.Devices == nil {
		f.Devices = []discovery.Device{}
	}
	return f.Devices, nil
}

func (r *Registry) save(devices []discovery.Device) error {
	if err := os.MkdirAll(filepath.Dir(r.path), defaultDirPerm); err != nil {
		return err
	}

	data, err := json.MarshalIndent(devicesFile{Devices: devices}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.path, data, defaultFilePerm)
}

// List returns all paired devices.
func (r *Registry) List() ([]discovery.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Pair adds a device, replacing an existing entry for the same address and login.
func (r *Registry) Pair(device discovery.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.load()
	if err != nil {
		return err
	}

	for i, d := range devices {
		if d.Equal(device) {
			devices[i] = device
			return r.save(devices)
		}
	}

	devices = append(devices, device)
	return r.save(devices)
}

// Unpair removes the device matching id.
func (r *Registry) Unpair(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.load()
	if err != nil {
		return err
	}

	i := find(devices, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	devices = append(devices[:i], devices[i+1:]...)
	return r.save(devices)
}

// Lookup returns the paired device whose ID or display name is id.
func (r *Registry) Lookup(id string) (discovery.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices, err := r.load()
	if err != nil {
		return discovery.Device{}, err
	}

	i := find(devices, id)
	if i < 0 {
		return discovery.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return devices[i], nil
}

// find prefers an exact ID match over a display name match.
func find(devices []discovery.Device, id string) int {
	for i, d := range devices {
		if d.ID() == id {
			return i
		}
	}
	for i, d := range devices {
		if d.DisplayName == id {
			return i
		}
	}
	return -1
}
