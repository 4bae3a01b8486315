package cli

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lobinuxsoft/devkit-deploy/internal/deploy"
	"github.com/lobinuxsoft/devkit-deploy/internal/device"
	"github.com/lobinuxsoft/devkit-deploy/internal/metrics"
	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
)

func newDeployCmd(opts *options) *cobra.Command {
	flags := &settingsFlags{}
	var (
		metricsFile string
		keyPath     string
	)

	cmd := &cobra.Command{
		Use:   "deploy <device>",
		Short: "Export the project and deploy it to a paired device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := zerolog.Ctx(ctx)

			settings, err := loadSettings(cmd, opts, flags)
			if err != nil {
				return err
			}

			reg := prom.NewRegistry()
			deployOpts := []deploy.Option{
				deploy.WithLogger(*log),
				deploy.WithObserver(newTerminalObserver(cmd.OutOrStdout())),
				deploy.WithMetrics(metrics.NewDeploy(reg)),
			}
			if keyPath != "" {
				deployOpts = append(deployOpts, deploy.WithRemoteFactory(keyFileRemote(keyPath, *log)))
			}

			orch := deploy.New(opts.registry(), settings, deployOpts...)
			report, deployErr := orch.Deploy(ctx, args[0])

			if metricsFile != "" {
				if err := prom.WriteToTextfile(metricsFile, reg); err != nil {
					log.Warn().Err(err).Str("file", metricsFile).Msg("Failed to write metrics")
				}
			}

			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if errors.Is(deployErr, device.ErrMissingCredential) {
				return fmt.Errorf("%w\nkey expected at the devkit client location, or pass --key", deployErr)
			}
			return deployErr
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write deploy metrics in Prometheus text format to this file")
	cmd.Flags().StringVar(&keyPath, "key", "", "Private key to use instead of the devkit client's")
	return cmd
}

func keyFileRemote(path string, log zerolog.Logger) deploy.RemoteFactory {
	return func(d discovery.Device) (deploy.Remote, error) {
		s, err := device.NewSession(d, device.WithKeyPath(path), device.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func printReport(w io.Writer, r *deploy.Report) {
	fmt.Fprintf(w, "\n%s: %s on %s in %s\n", r.GameID, r.Outcome, r.Device, r.Duration().Round(time.Millisecond))
	if r.Directory != "" {
		fmt.Fprintf(w, "Remote directory: %s\n", r.Directory)
	}
	if r.Warning != nil {
		fmt.Fprintf(w, "Warning: %v\n", r.Warning)
	}
}

// terminalObserver renders deploy events as plain text lines.
type terminalObserver struct {
	mu sync.Mutex
	w  io.Writer
}

func newTerminalObserver(w io.Writer) *terminalObserver {
	return &terminalObserver{w: w}
}

func (t *terminalObserver) OnStageChanged(stage deploy.Stage, status deploy.StageStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch status {
	case deploy.Running:
		fmt.Fprintf(t.w, "==> %s\n", stage)
	case deploy.Succeeded, deploy.Failed:
		fmt.Fprintf(t.w, "<== %s %s\n", stage, status)
	}
}

func (t *terminalObserver) OnLogLine(stage deploy.Stage, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "    [%s] %s\n", stage, text)
}
