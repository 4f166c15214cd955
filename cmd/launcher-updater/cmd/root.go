package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/service/bootstrap"
	"github.com/oshokin/launcher-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for updating and relaunching the launcher.
	rootCmd = &cobra.Command{
		Use:   "launcher-updater <launcher-path> [predecessor-pid]",
		Short: "Update the launcher artifact and start it again",
		Long: "Wait for the launcher process to exit, replace the launcher artifact when the update " +
			"authority publishes a different one, and start the launcher again.",
		Args:         cobra.RangeArgs(1, 2),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &bootstrap.Options{
				LauncherPath: args[0],
				ConfigPath:   configPath,
			}

			if len(args) > 1 {
				options.Predecessor = args[1]
			}

			return bootstrap.Run(ctx, options)
		},
	}
)

// Execute runs the launcher-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(rollbackCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultConfigPath places the settings next to the executable.
func defaultConfigPath() string {
	executable, err := os.Executable()
	if err != nil {
		return config.DefaultConfigFilename
	}

	return filepath.Join(filepath.Dir(executable), config.DefaultConfigFilename)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to configuration file")
}
