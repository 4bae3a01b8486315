package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lobinuxsoft/devkit-deploy/pkg/config"
	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
)

var errNoDeviceGiven = errors.New("give a device name or --address")

func newDevicesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage paired devices",
	}
	cmd.AddCommand(newDevicesListCmd(opts))
	cmd.AddCommand(newDevicesPairCmd(opts))
	cmd.AddCommand(newDevicesUnpairCmd(opts))
	return cmd
}

func newDevicesListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List paired devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := opts.registry().List()
			if err != nil {
				return err
			}
			printDevices(cmd.OutOrStdout(), devices)
			return nil
		},
	}
}

func newDevicesPairCmd(opts *options) *cobra.Command {
	flags := &scanFlags{}
	var (
		address string
		login   string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "pair [name|address|login@address]",
		Short: "Pair a discovered device, or one given by --address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dev discovery.Device

			switch {
			case address != "":
				dev = discovery.Device{
					DisplayName: address,
					Address:     address,
					Port:        port,
					Login:       login,
				}
				if len(args) == 1 {
					dev.DisplayName = args[0]
				}
			case len(args) == 1:
				devices, err := flags.scanner(cmd.Context()).ScanDevices(cmd.Context())
				if err != nil {
					return err
				}
				found, ok := matchDevice(devices, args[0])
				if !ok {
					return fmt.Errorf("%w: no scanned device matches %q", config.ErrDeviceNotFound, args[0])
				}
				dev = found
				if port != 0 {
					dev.Port = port
				}
			default:
				return errNoDeviceGiven
			}

			if err := opts.registry().Pair(dev); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paired %s\n", dev)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&address, "address", "", "Pair this host without scanning")
	cmd.Flags().StringVar(&login, "login", "deck", "SSH login used with --address")
	cmd.Flags().IntVar(&port, "port", 0, "SSH port (default 22)")
	return cmd
}

func matchDevice(devices []discovery.Device, key string) (discovery.Device, bool) {
	for _, d := range devices {
		if d.ID() == key || d.Address == key || strings.EqualFold(d.DisplayName, key) {
			return d, true
		}
	}
	return discovery.Device{}, false
}

func newDevicesUnpairCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "unpair <id|name>",
		Short: "Forget a paired device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.registry().Unpair(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unpaired %s\n", args[0])
			return nil
		},
	}
}
