// Package cli implements the devkit-deploy command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lobinuxsoft/devkit-deploy/internal/logging"
	"github.com/lobinuxsoft/devkit-deploy/pkg/config"
	"github.com/lobinuxsoft/devkit-deploy/pkg/version"
)

const appName = "devkit-deploy"

// options holds the persistent flags.
type options struct {
	logLevel  string
	logFormat string
	project   string
}

func (o *options) stateDir() string {
	return config.Dir(o.project)
}

func (o *options) registry() *config.Registry {
	return config.NewRegistry(o.stateDir())
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Build a project and deploy it to a SteamOS devkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			base := logging.Base(appName, opts.logLevel, opts.logFormat)
			cmd.SetContext(base.WithContext(cmd.Context()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format: json, console")
	rootCmd.PersistentFlags().StringVarP(&opts.project, "project", "p", ".", "Project root holding "+config.DirName)

	rootCmd.AddCommand(newInitCmd(opts))
	rootCmd.AddCommand(newScanCmd(opts))
	rootCmd.AddCommand(newDevicesCmd(opts))
	rootCmd.AddCommand(newDeployCmd(opts))
	rootCmd.AddCommand(newAnnounceCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(appName + " " + version.Full() + "\n")

	return rootCmd
}

// ExecuteContext runs the root command and exits non-zero on error.
func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version.Full())
			return err
		},
	}
}
