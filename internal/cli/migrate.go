package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"recon/internal/platform/postgres"
)

func newMigrateCmd(env envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the searches and search_results tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := env()
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("postgres.dsn is not set")
			}
			db, err := postgres.Open(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info("schema applied")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
