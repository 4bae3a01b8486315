package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "github.com/goccy/go-yaml"
)

// UploadMethod selects how a build replaces the previous one on the device.
type UploadMethod string

const (
	// Differential reuses the same remote title and overwrites changed files.
	Differential UploadMethod = "differential"
	// Incremental uploads each build as a new, timestamped title.
	Incremental UploadMethod = "incremental"
	// CleanReplace deletes the remote title before building.
	CleanReplace UploadMethod = "clean-replace"
)

// UploadMethods lists the accepted methods.
var UploadMethods = []UploadMethod{Differential, Incremental, CleanReplace}

var errUnknownUploadMethod = errors.New("unknown upload method")

// ParseUploadMethod accepts the text forms used in settings and flags.
func ParseUploadMethod(s string) (UploadMethod, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	if normalized == "cleanreplace" {
		normalized = string(CleanReplace)
	}
	for _, m := range UploadMethods {
		if string(m) == normalized {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w %q (want one of differential, incremental, clean-replace)", errUnknownUploadMethod, s)
}

func (m UploadMethod) String() string {
	return string(m)
}

// Set implements pflag.Value.
func (m *UploadMethod) Set(s string) error {
	parsed, err := ParseUploadMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Type implements pflag.Value.
func (m *UploadMethod) Type() string {
	return "method"
}

var (
	errBuildPathEmpty    = errors.New("build_path must be set")
	errExportToolEmpty   = errors.New("export_tool must be set")
	errProjectPathEmpty  = errors.New("project_path must be set")
	errExecutableInvalid = errors.New("executable_name must be a plain file name")
)

// Settings are the per-project deploy options.
type Settings struct {
	BuildPath       string       `yaml:"build_path"`
	StartParameters string       `yaml:"start_parameters,omitempty"`
	UploadMethod    UploadMethod `yaml:"upload_method"`
	ProjectPath     string       `yaml:"project_path"`
	ProjectName     string       `yaml:"project_name"`
	ExportTool      string       `yaml:"export_tool"`
	ExportPreset    string       `yaml:"export_preset"`
	Release         bool         `yaml:"release"`
	ExecutableName  string       `yaml:"executable_name"`
	SteamPlay       string       `yaml:"steam_play"`
}

// DefaultSettings returns settings with every optional field filled in.
func DefaultSettings() Settings {
	s := Settings{}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills empty optional fields.
func (s *Settings) ApplyDefaults() {
	if s.UploadMethod == "" {
		s.UploadMethod = Differential
	}
	if s.ExportPreset == "" {
		s.ExportPreset = "Steamdeck"
	}
	if s.ExecutableName == "" {
		s.ExecutableName = "game.x86_64"
	}
	if s.SteamPlay == "" {
		s.SteamPlay = "0"
	}
	if s.ProjectName == "" && s.ProjectPath != "" {
		s.ProjectName = filepath.Base(filepath.Clean(s.ProjectPath))
	}
}

// Validate checks that a deploy can be attempted with these settings.
func (s Settings) Validate() error {
	var errs []error
	if s.BuildPath == "" {
		errs = append(errs, errBuildPathEmpty)
	}
	if s.ExportTool == "" {
		errs = append(errs, errExportToolEmpty)
	}
	if s.ProjectPath == "" {
		errs = append(errs, errProjectPathEmpty)
	}
	if _, err := ParseUploadMethod(string(s.UploadMethod)); err != nil {
		errs = append(errs, err)
	}
	if s.ExecutableName == "" || strings.ContainsAny(s.ExecutableName, `/\`) {
		errs = append(errs, errExecutableInvalid)
	}
	return errors.Join(errs...)
}

// ExecutablePath returns the export output inside the build directory.
func (s Settings) ExecutablePath() string {
	return filepath.Join(s.BuildPath, s.ExecutableName)
}

// LoadSettings reads settings.yaml from dir. A missing file yields defaults.
func LoadSettings(dir string) (Settings, error) {
	path := filepath.Join(dir, SettingsFile)

	b, err := os.ReadFile(path) //nolint:gosec // path is derived from the project folder
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if s.UploadMethod != "" {
		m, err := ParseUploadMethod(string(s.UploadMethod))
		if err != nil {
			return Settings{}, fmt.Errorf("%s: %w", path, err)
		}
		s.UploadMethod = m
	}
	s.ApplyDefaults()
	return s, nil
}

// SaveSettings writes s to dir/settings.yaml.
func SaveSettings(dir string, s Settings) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings to YAML: %w", err)
	}

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return err
	}

	path := filepath.Join(dir, SettingsFile)
	if err := os.WriteFile(path, out, defaultFilePerm); err != nil {
		return fmt.Errorf("failed to write settings file %s: %w", path, err)
	}
	return nil
}
