// Package cli wires the modwarden commands: serve runs the bot, migrate
// applies the schema, duration exposes the duration codec to operators.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "modwarden",
		Short:         "Discord moderation bot",
		Long:          "modwarden moderates Discord servers with slash commands, timed mutes, message reports and an audit log.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				return os.Setenv("CONFIG_PATH", opts.configPath)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the YAML config file (sets CONFIG_PATH)")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newDurationCommand())

	return cmd
}
