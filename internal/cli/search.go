package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"recon/internal/app"
	"recon/internal/search/models"
)

func newSearchCmd(env envFunc) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:     "search <email|domain|phone> <query>",
		Short:   "Run one search and print its summary as JSON",
		Example: `  recon search email alice@example.com
  recon search domain example.com
  recon search phone +919997260627`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			searchType, err := models.ParseSearchType(args[0])
			if err != nil {
				return err
			}
			cfg, log, err := env()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			engine, err := app.Build(ctx, cfg, log, app.WithoutBackground())
			if err != nil {
				return err
			}
			defer engine.Close()

			search, err := engine.Service.Create(ctx, searchType, args[1])
			if err != nil {
				return err
			}
			// Setup failures (no adapters, bad phone number) leave a failed
			// search behind; its summary is still printed.
			if _, err := engine.Service.Execute(ctx, search.ID); err != nil {
				log.Warn("search did not run", "search_id", search.ID, "error", err)
			}
			summary, err := engine.Service.Get(ctx, search.ID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the search")
	return cmd
}
