package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the root command for the fern CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fern",
		Short: "fern - contact identity reconciliation",
		Long:  "Links email / phone number observations to the person they belong to and serves the consolidated identity.",
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "optional dotenv file loaded before the environment")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewIdentifyCommand(opts))

	return cmd
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.EnvFile)
}

// Execute runs the root command with a background context.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}
