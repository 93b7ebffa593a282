package cli

import (
	"github.com/spf13/cobra"

	"github.com/SoftComply/marketing-automation/internal/config"
)

// NewValidateCommand creates the validate command: check the config
// file against the embedded schema without touching any data.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(opts.ConfigPath); err != nil {
				return WrapExitError(ExitCommandError, "invalid config", err)
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			out.Textf("config ok\n")
			return out.Success(map[string]any{"valid": true})
		},
	}
	return cmd
}
