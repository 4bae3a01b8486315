package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lobinuxsoft/devkit-deploy/pkg/config"
)

type settingsFlags struct {
	buildPath       string
	startParameters string
	exportTool      string
	exportPreset    string
	projectName     string
	release         bool
	method          config.UploadMethod
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.buildPath, "build-path", "", "Local directory the export writes into")
	fl.StringVar(&f.startParameters, "start-params", "", "Extra launch argument for the shortcut")
	fl.StringVar(&f.exportTool, "export-tool", "", "Path to the engine executable used for export")
	fl.StringVar(&f.exportPreset, "preset", "", "Export preset name")
	fl.StringVar(&f.projectName, "name", "", "Project name the game id is derived from")
	fl.BoolVar(&f.release, "release", false, "Export a release build instead of debug")
	fl.Var(&f.method, "method", "Upload method: differential, incremental, clean-replace")
}

// apply overrides s with every flag the user set.
func (f *settingsFlags) apply(cmd *cobra.Command, s *config.Settings) {
	changed := cmd.Flags().Changed
	if changed("build-path") {
		s.BuildPath = f.buildPath
	}
	if changed("start-params") {
		s.StartParameters = f.startParameters
	}
	if changed("export-tool") {
		s.ExportTool = f.exportTool
	}
	if changed("preset") {
		s.ExportPreset = f.exportPreset
	}
	if changed("name") {
		s.ProjectName = f.projectName
	}
	if changed("release") {
		s.Release = f.release
	}
	if changed("method") {
		s.UploadMethod = f.method
	}
}

// loadSettings reads the project settings and applies flag overrides.
func loadSettings(cmd *cobra.Command, opts *options, flags *settingsFlags) (config.Settings, error) {
	s, err := config.LoadSettings(opts.stateDir())
	if err != nil {
		return config.Settings{}, err
	}

	if s.ProjectPath == "" {
		abs, err := filepath.Abs(opts.project)
		if err != nil {
			return config.Settings{}, err
		}
		s.ProjectPath = abs
	}
	flags.apply(cmd, &s)
	if s.BuildPath != "" && !filepath.IsAbs(s.BuildPath) {
		s.BuildPath = filepath.Join(s.ProjectPath, s.BuildPath)
	}
	s.ApplyDefaults()
	return s, nil
}

func newInitCmd(opts *options) *cobra.Command {
	flags := &settingsFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write deploy settings for the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, opts, flags)
			if err != nil {
				return err
			}
			if err := config.SaveSettings(opts.stateDir(), s); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n", filepath.Join(opts.stateDir(), config.SettingsFile))
			if err := s.Validate(); err != nil {
				fmt.Fprintf(out, "Settings are incomplete:\n%v\n", err)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
