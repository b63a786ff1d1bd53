package cli

import (
	"fmt"

	"modwarden/internal/config"
	"modwarden/internal/storage"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadStorage()
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", store.Driver())
			return nil
		},
	}
}
