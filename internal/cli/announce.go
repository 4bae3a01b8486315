package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lobinuxsoft/devkit-deploy/pkg/discovery"
)

func newAnnounceCmd() *cobra.Command {
	info := discovery.AnnounceInfo{}

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Advertise this machine as a devkit until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.Ctx(cmd.Context())
			announcer := discovery.NewAnnouncer(info)

			fmt.Fprintf(cmd.OutOrStdout(), "Announcing %s, press Ctrl+C to stop\n", discovery.ServiceType)
			log.Info().Strs("txt", announcer.TxtRecords()).Msg("Starting announcer")
			return announcer.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&info.Instance, "name", "", "Instance name (default: hostname)")
	cmd.Flags().IntVar(&info.Port, "port", 32000, "Advertised service port")
	cmd.Flags().StringVar(&info.Login, "login", "deck", "Advertised SSH login")
	cmd.Flags().StringVar(&info.Settings, "settings", "{}", "Advertised settings JSON")
	cmd.Flags().StringVar(&info.Devkit1, "devkit1", "", "Advertised devkit1 value")
	return cmd
}
