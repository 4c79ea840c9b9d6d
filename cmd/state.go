package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/houseofcat/rabbitreader/reader"
)

func newStateCommand(root *rootOptions) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show or reset the persisted reader state",
		Long: `Show the current source and the processed and failed counters kept in
state.path. With --reset the three values are cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {

			app, log, err := root.loadApp()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			store, err := openStore(app.StatePath, log)
			if err != nil {
				return err
			}
			defer closeStore(store, log)

			r, err := reader.NewReader(app.Reader, newDialer(log), store, log, nil)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			out := cmd.OutOrStdout()
			if reset {
				if err := r.ResetState(); err != nil {
					return err
				}
				log.Info("state reset", zap.String("reader", app.Reader.Name))
				printf(out, "state reset for %s\n", app.Reader.Name)
				return nil
			}

			current, err := r.CurrentFile()
			if err != nil {
				return err
			}

			processed, err := r.ProcessedCount()
			if err != nil {
				return err
			}

			failed, err := r.FailedCount()
			if err != nil {
				return err
			}

			printf(out, "reader: %s\n", app.Reader.Name)
			printf(out, "current_file: %s\n", current)
			printf(out, "processed_count: %d\n", processed)
			printf(out, "failed_count: %d\n", failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "clear the current source and counters")

	return cmd
}
