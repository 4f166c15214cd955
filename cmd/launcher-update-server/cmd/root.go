package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/service/server"
	"github.com/oshokin/launcher-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// listenAddress overrides listen_address from settings.
	listenAddress string
	// publishDir overrides publish_dir from settings.
	publishDir string

	// rootCmd represents the base command for serving launcher releases.
	rootCmd = &cobra.Command{
		Use:   "launcher-update-server",
		Short: "Serve the published launcher release over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				PublishDir:    publishDir,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the launcher-update-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&listenAddress, "listen", "l", "", "listen address (overrides listen_address from settings)")
	rootCmd.Flags().StringVarP(&publishDir, "publish-dir", "d", "", "publish directory (overrides publish_dir from settings)")
}
