package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/service/publisher"
	"github.com/oshokin/launcher-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// releaseVersion overrides the version read from the artifact.
	releaseVersion string
	// outDir overrides the publish directory.
	outDir string

	// rootCmd represents the base command for publishing a launcher release.
	rootCmd = &cobra.Command{
		Use:   "launcher-publisher <artifact>",
		Short: "Publish a launcher artifact for the update server",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &publisher.Options{
				ConfigPath:   configPath,
				ArtifactPath: args[0],
				Version:      releaseVersion,
				OutDir:       outDir,
			}

			_, err := publisher.Run(ctx, options)

			return err
		},
	}
)

// Execute runs the launcher-publisher CLI and exits with non-zero status on error.
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
	rootCmd.Flags().StringVar(&releaseVersion, "version", "", "release version (read from the artifact when empty)")
	rootCmd.Flags().StringVarP(&outDir, "out", "o", "", "publish directory (overrides publish_dir from settings)")
}
