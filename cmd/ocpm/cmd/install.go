package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hykilpikonna/ocpm/internal/service/pm"
)

// installCmd resolves, installs and enables the named kexts.
var installCmd = &cobra.Command{
	Use:   "install <names...>",
	Short: "Install kexts and enable them in the boot configuration.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return pm.RunInstall(ctx, &pm.Options{
			EFIPath:            efiPath,
			ConfigPath:         configPath,
			Names:              args,
			IncludePrereleases: includePrereleases,
			SkipConfirmation:   skipConfirmation,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(installCmd)
}
