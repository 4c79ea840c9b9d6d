package cmd

import (
	"github.com/spf13/cobra"

	"github.com/houseofcat/rabbitreader/config"
)

func newVerifyCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the configuration without connecting",
		Long: `Check that every required key (host, port, vhost, queue) is set and that
the optional keys hold valid values. Nothing connects to the broker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {

			v, err := root.loadViper()
			if err != nil {
				return err
			}

			readerConfig, err := config.Load(v)
			if err != nil {
				return err
			}

			printf(cmd.OutOrStdout(), "configuration ok: %s queue %q on %s%s\n",
				readerConfig.Name, readerConfig.Queue, readerConfig.Address(), readerConfig.Vhost)
			return nil
		},
	}
}
