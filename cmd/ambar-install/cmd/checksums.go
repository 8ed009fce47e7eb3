package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ambarlabs/ambar-install/internal/service/manifest"
)

var (
	// checksumsOutput is the manifest destination path.
	checksumsOutput string

	// checksumsCmd generates the checksum manifest for a directory of
	// release archives, for release pipelines and local install sources.
	checksumsCmd = &cobra.Command{
		Use:   "checksums <directory>",
		Short: "Generate the checksum manifest for release archives",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &manifest.Options{
				Dir:    args[0],
				Output: checksumsOutput,
			}

			return manifest.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checksumsCmd.Flags().StringVarP(&checksumsOutput, "output", "o", "",
		"manifest path (defaults to checksums.txt inside the directory)")
	rootCmd.AddCommand(checksumsCmd)
}
