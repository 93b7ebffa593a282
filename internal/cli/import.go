package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SoftComply/marketing-automation/internal/dataset"
	"github.com/SoftComply/marketing-automation/internal/engine"
)

// NewImportCommand creates the import command: ingest a raw data set
// JSON file as a new snapshot.
func NewImportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <dataset.json>",
		Short: "Store a downloaded data set as a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := loadConfig(opts)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			defer cleanup()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read dataset", err)
			}
			var ds dataset.DataSet
			if err := json.Unmarshal(data, &ds); err != nil {
				return WrapExitError(ExitCommandError, "parse dataset", fmt.Errorf("%s: %w", args[0], err))
			}

			store, err := dataset.Open(cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer store.Close()

			id := engine.UUIDv7Generator{}.Generate()
			if err := store.SaveSnapshot(cmd.Context(), id, time.Now(), &ds); err != nil {
				return WrapExitError(ExitCommandError, "save snapshot", err)
			}
			logger.Info("snapshot imported",
				"id", id,
				"deals", len(ds.Deals),
				"contacts", len(ds.Contacts),
				"companies", len(ds.Companies),
				"licenses", len(ds.Licenses),
				"transactions", len(ds.Transactions))

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			out.Textf("imported snapshot %s\n", id)
			return out.Success(map[string]any{"id": id})
		},
	}
	return cmd
}
