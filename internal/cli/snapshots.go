package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/SoftComply/marketing-automation/internal/dataset"
)

// NewSnapshotsCommand creates the snapshots command group: list and
// prune stored data set snapshots.
func NewSnapshotsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage stored data set snapshots",
	}
	cmd.AddCommand(newSnapshotsListCommand(opts))
	cmd.AddCommand(newSnapshotsPruneCommand(opts))
	return cmd
}

func newSnapshotsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, cleanup, err := loadConfig(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer cleanup()

			store, err := dataset.Open(cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer store.Close()

			infos, err := store.ListSnapshots(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "list snapshots", err)
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			for _, info := range infos {
				out.Textf("%s  %s\n", info.ID, info.CreatedAt.Format(time.RFC3339))
			}
			return out.Success(infos)
		},
	}
}

func newSnapshotsPruneCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the configured number of recent snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := loadConfig(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer cleanup()

			store, err := dataset.Open(cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer store.Close()

			deleted, err := store.PruneSnapshots(cmd.Context(), cfg.KeepSnapshots)
			if err != nil {
				return WrapExitError(ExitCommandError, "prune snapshots", err)
			}
			logger.Info("pruned snapshots", "deleted", deleted, "kept", cfg.KeepSnapshots)

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			out.Textf("deleted %d snapshots\n", deleted)
			return out.Success(map[string]any{"deleted": deleted})
		},
	}
}
