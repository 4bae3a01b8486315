package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lobinuxsoft/devkit-deploy/internal/metrics"
	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
)

type scanFlags struct {
	timeout      time.Duration
	versionCheck bool
	all          bool
}

func (f *scanFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.timeout, "timeout", discovery.DefaultScanTimeout, "How long to browse for devices")
	cmd.Flags().BoolVar(&f.versionCheck, "version-check", false, "Skip devices advertising an unknown txtvers")
}

func (f *scanFlags) scanner(ctx context.Context) *discovery.Scanner {
	return discovery.NewScanner(
		discovery.WithTimeout(f.timeout),
		discovery.WithVersionCheck(f.versionCheck),
		discovery.WithLogger(*zerolog.Ctx(ctx)),
	)
}

func newScanCmd(opts *options) *cobra.Command {
	flags := &scanFlags{}
	var (
		watch       time.Duration
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find devkits on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			scanner := flags.scanner(ctx)
			out := cmd.OutOrStdout()
			rec := newScanRecorder(*zerolog.Ctx(ctx), metricsFile)

			filter := func(devices []discovery.Device) ([]discovery.Device, error) {
				if flags.all {
					return devices, nil
				}
				paired, err := opts.registry().List()
				if err != nil {
					return nil, err
				}
				return discovery.ExcludePaired(devices, paired), nil
			}

			if watch > 0 {
				discovery.Watch(ctx, scanner, watch, func(devices []discovery.Device, err error) {
					rec.record(devices, err)
					if err == nil {
						devices, err = filter(devices)
					}
					if err != nil {
						fmt.Fprintf(out, "scan failed: %v\n", err)
						return
					}
					fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.TimeOnly))
					printDevices(out, devices)
				})
				return nil
			}

			devices, err := scanner.ScanDevices(ctx)
			rec.record(devices, err)
			if err != nil {
				return err
			}
			devices, err = filter(devices)
			if err != nil {
				return err
			}
			printDevices(out, devices)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.all, "all", false, "Include devices that are already paired")
	cmd.Flags().DurationVar(&watch, "watch", 0, "Rescan at this interval until interrupted")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write scan metrics in Prometheus text format to this file after every scan")
	return cmd
}

// scanRecorder updates scan metrics and rewrites the metrics file, if any.
type scanRecorder struct {
	log     zerolog.Logger
	file    string
	reg     *prom.Registry
	metrics *metrics.Scan
}

func newScanRecorder(log zerolog.Logger, file string) *scanRecorder {
	reg := prom.NewRegistry()
	return &scanRecorder{log: log, file: file, reg: reg, metrics: metrics.NewScan(reg)}
}

func (r *scanRecorder) record(devices []discovery.Device, err error) {
	r.metrics.ObserveScan(len(devices), err)
	if r.file == "" {
		return
	}
	if err := prom.WriteToTextfile(r.file, r.reg); err != nil {
		r.log.Warn().Err(err).Str("file", r.file).Msg("Failed to write metrics")
	}
}

func printDevices(w io.Writer, devices []discovery.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found")
		return
	}
	for _, d := range devices {
		fmt.Fprintf(w, "%-24s %-28s %s\n", d.DisplayName, d.ID(), d.ServiceName)
	}
}
