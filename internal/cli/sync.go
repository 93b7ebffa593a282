package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/SoftComply/marketing-automation/internal/dataset"
	"github.com/SoftComply/marketing-automation/internal/engine"
)

// NewSyncCommand creates the sync command: run one reconciliation pass
// over the latest snapshot, or keep re-running with --loop.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	var (
		dryRun bool
		loop   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a reconciliation pass over the latest snapshot",
		Long: "Loads the most recent data set snapshot, generates deal actions from its " +
			"event stream, and records the action log. Without a remote API configured " +
			"the run is offline and created entities receive placeholder ids.",
		Args: cobra.NoArgs,
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

			eng := engine.New(cfg.Engine,
				engine.WithStore(store),
				engine.WithLogger(logger),
				engine.WithDryRun(dryRun),
			)

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			runOnce := func(ctx context.Context) error {
				return syncOnce(ctx, eng, store, out)
			}

			if !loop {
				return runOnce(cmd.Context())
			}

			// Bounded retry loop: abort after maxFailures consecutive
			// failed passes.
			failures := 0
			for {
				if err := runOnce(cmd.Context()); err != nil {
					failures++
					logger.Error("sync pass failed", "error", err, "consecutiveFailures", failures)
					if engine.IsFatal(err) || failures >= cfg.Loop.MaxFailures {
						return err
					}
				} else {
					failures = 0
				}

				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(cfg.Loop.Interval.Std()):
				}
			}
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute actions but skip the uploader")
	cmd.Flags().BoolVar(&loop, "loop", false, "re-run on the configured interval")

	return cmd
}

func syncOnce(ctx context.Context, eng *engine.Engine, store *dataset.Store, out *OutputFormatter) error {
	id, ds, err := store.LoadLatest(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "load snapshot", err)
	}

	result, err := eng.Run(ctx, ds)
	if err != nil {
		return WrapExitError(ExitFailure, "run engine", err)
	}

	out.Textf("run %s over snapshot %s\n", result.RunID, id)
	out.Textf("  created: %d  updated: %d  noop: %d\n",
		result.Summary.DealsCreated, result.Summary.DealsUpdated, result.Summary.Noops)
	out.Textf("  deals: %d  total value: %s\n",
		result.Summary.TotalDealCount, engine.FormatMoney(result.Summary.TotalDealValue))
	if result.Summary.IgnoredTotal > 0 {
		out.Textf("  ignored: %s\n", engine.FormatMoney(result.Summary.IgnoredTotal))
	}
	if result.Summary.DuplicateDeals > 0 {
		out.Textf("  duplicates to delete: %d (%s)\n",
			result.Summary.DuplicateDeals, engine.FormatMoney(result.Summary.DuplicateValue))
	}

	return out.Success(map[string]any{
		"runId":    result.RunID,
		"snapshot": id,
		"summary":  result.Summary,
	})
}
