package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/crypto/ssh"
)

const keyFileName = "devkit_rsa"

// DefaultKeyPath returns where the official devkit client stores its key.
func DefaultKeyPath() (string, error) {
	return keyPathFor(runtime.GOOS, os.Getenv, os.UserConfigDir)
}

func keyPathFor(goos string, getenv func(string) string, configDir func() (string, error)) (string, error) {
	if goos == "windows" {
		local := getenv("LOCALAPPDATA")
		if local == "" {
			return "", errors.New("LOCALAPPDATA is not set")
		}
		return filepath.Join(local, "steamos-devkit", "steamos-devkit", keyFileName), nil
	}

	dir, err := configDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "steamos-devkit", keyFileName), nil
}

// LoadSigner reads and parses the private key at path.
func LoadSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w (expected at %s)", ErrMissingCredential, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key %s: %w", path, err)
	}
	return signer, nil
}
