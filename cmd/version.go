package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			printf(out, "rabbitreader version %s\n", version)
			printf(out, "  commit: %s\n", commit)
			printf(out, "  built: %s\n", buildTime)
			printf(out, "  go: %s\n", runtime.Version())
			printf(out, "  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
