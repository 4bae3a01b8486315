package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
)

var (
	deck     = discovery.Device{DisplayName: "steamdeck", Address: "192.168.1.20", Login: "deck", Settings: "{}"}
	deckRoot = discovery.Device{DisplayName: "steamdeck-root", Address: "192.168.1.20", Login: "root"}
)

func TestRegistry_ListEmpty(t *testing.T) {
	r := NewRegistry(Dir(t.TempDir()))

	devices, err := r.List()
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestRegistry_PairPersists(t *testing.T) {
	dir := Dir(t.TempDir())
	require.NoError(t, NewRegistry(dir).Pair(deck))
	require.NoError(t, NewRegistry(dir).Pair(deckRoot))

	devices, err := NewRegistry(dir).List()
	require.NoError(t, err)
	assert.Equal(t, []discovery.Device{deck, deckRoot}, devices)

	info, err := os.Stat(filepath.Join(dir, DevicesFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRegistry_PairReplacesSameDevice(t *testing.T) {
	r := NewRegistry(t.TempDir())
	require.NoError(t, r.Pair(deck))

	renamed := deck
	renamed.DisplayName = "living room"
	require.NoError(t, r.Pair(renamed))

	devices, err := r.List()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "living room", devices[0].DisplayName)
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(t.TempDir())
	require.NoError(t, r.Pair(deck))
	require.NoError(t, r.Pair(deckRoot))

	tests := []struct {
		id   string
		want discovery.Device
	}{
		{"deck@192.168.1.20", deck},
		{"root@192.168.1.20", deckRoot},
		{"steamdeck-root", deckRoot},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := r.Lookup(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := r.Lookup("nobody@10.0.0.1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestRegistry_Unpair(t *testing.T) {
	r := NewRegistry(t.TempDir())
	require.NoError(t, r.Pair(deck))
	require.NoError(t, r.Pair(deckRoot))

	require.NoError(t, r.Unpair(deck.ID()))

	devices, err := r.List()
	require.NoError(t, err)
	assert.Equal(t, []discovery.Device{deckRoot}, devices)

	assert.ErrorIs(t, r.Unpair(deck.ID()), ErrDeviceNotFound)
}

func TestRegistry_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DevicesFile), []byte("{not json"), 0o600))

	_, err := NewRegistry(dir).List()
	assert.Error(t, err)
}
