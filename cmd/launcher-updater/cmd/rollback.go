package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/launcher-updater/internal/logger"
	"github.com/oshokin/launcher-updater/internal/service/updater"
)

// rollbackCmd restores the launcher artifact from its backup.
var rollbackCmd = &cobra.Command{
	Use:          "rollback <launcher-path>",
	Short:        "Restore the launcher artifact from its .bak backup",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := logger.WithName(cmd.Context(), "rollback")

		if err := updater.Rollback(ctx, args[0]); err != nil {
			logger.ErrorKV(ctx, "Rollback failed", "error", err)

			return err
		}

		return nil
	},
}
