package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hykilpikonna/ocpm/internal/service/pm"
)

// enableCmd patches the boot configuration only; no network access.
var enableCmd = &cobra.Command{
	Use:   "enable <names...>",
	Short: "Enable installed kexts in the boot configuration.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return pm.RunEnable(ctx, &pm.Options{
			EFIPath:    efiPath,
			ConfigPath: configPath,
			Names:      args,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(enableCmd)
}
