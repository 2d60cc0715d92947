package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hykilpikonna/ocpm/internal/config"
	"github.com/hykilpikonna/ocpm/internal/logger"
	"github.com/hykilpikonna/ocpm/internal/version"
)

var (
	// efiPath is the EFI directory (or its mount) to operate on.
	efiPath string
	// configPath is the path to the ocpm settings YAML file.
	configPath string
	// includePrereleases makes prereleases eligible during resolution.
	includePrereleases bool
	// skipConfirmation applies plans without prompting.
	skipConfirmation bool
	// logLevel is the minimum level for log output.
	logLevel string

	// rootCmd represents the base command for the kext package manager.
	rootCmd = &cobra.Command{
		Use:   "ocpm",
		Short: "OpenCore kext package manager.",
		Long: `ocpm keeps the kexts on an OpenCore EFI partition up to date.

It scans the installed kext bundles, resolves their latest GitHub releases,
downloads and installs updates with per-run backups of the displaced bundles,
and can enable kexts in the boot configuration.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if level, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(level)
			}
		},
	}
)

// Execute runs the ocpm CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&efiPath, "efi", "e", ".", "path to the EFI directory or its mount")
	flags.StringVarP(&configPath, "config", "c", "",
		"path to settings file (default "+config.DefaultConfigFilename+", may be absent)")
	flags.BoolVar(&includePrereleases, "pre", false, "include prereleases")
	flags.BoolVarP(&skipConfirmation, "yes", "y", false, "skip the confirmation prompt")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
