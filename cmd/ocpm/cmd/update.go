package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hykilpikonna/ocpm/internal/service/pm"
)

// updateCmd scans installed kexts and applies the computed update plan.
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update all installed kexts to their latest releases.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return pm.RunUpdate(ctx, &pm.Options{
			EFIPath:            efiPath,
			ConfigPath:         configPath,
			IncludePrereleases: includePrereleases,
			SkipConfirmation:   skipConfirmation,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(updateCmd)
}
