/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/

// The refresh command re-fetches favicons and thumbnails for stored websites.
//
// Features:
//   - Refresh a single website by specifying its ID.
//   - Refresh only websites that are missing an image.
//   - Limit the number of websites processed.
//   - Pace the run in batches with a delay between them.
//   - Optionally render pages in Chrome first, for sites that inject their icons from JavaScript.
//
// Example usage:
//
//	hamsternav refresh --id=123
//	hamsternav refresh --only-missing --limit=50 --batch-size=5 --batch-delay=2s
//	hamsternav refresh --render --wait-selector="link[rel=icon]" --chrome-path="/path/to/chrome"
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hamsternav/hamsternav/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-fetch favicons and thumbnails for stored websites",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRefresh(cmd); err != nil {
			log.Fatal().Err(err).Msg("Refresh failed")
		}
	},
}

// runRefresh is the main function for the refresh command.
func runRefresh(cmd *cobra.Command) error {
	cfg, err := setup(cmd, "refresh")
	if err != nil {
		return err
	}

	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return fmt.Errorf("failed to read --id: %w", err)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("failed to read --limit: %w", err)
	}
	onlyMissing, err := cmd.Flags().GetBool("only-missing")
	if err != nil {
		return fmt.Errorf("failed to read --only-missing: %w", err)
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return fmt.Errorf("failed to read --timeout: %w", err)
	}
	if cmd.Flags().Changed("timeout") {
		cfg.HTTP.Timeout = timeout
		cfg.Render.Timeout = timeout
	}

	database, err := initDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	store, err := core.NewImageStore(cfg.Images.Dir, cfg.Images.PublicPrefix)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := core.RefreshOptions{
		ID:          id,
		Limit:       limit,
		OnlyMissing: onlyMissing,
		BatchSize:   cfg.Refresh.BatchSize,
		BatchDelay:  cfg.Refresh.BatchDelay,
	}
	if id <= 0 {
		opts.Progress = progressReporter(cmd.ErrOrStderr(), "refreshing")
	}

	res, err := core.RunRefresh(ctx, database, newFetcher(cfg, store), opts)
	fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d website(s): %d updated, %d unchanged, %d failed\n",
		res.Attempted, res.Updated, res.Unchanged, res.Failed)
	return err
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().Int64("id", 0, "Refresh a specific website id")
	refreshCmd.Flags().Int("limit", 0, "Limit the number of websites to refresh (0 = all)")
	refreshCmd.Flags().Bool("only-missing", false, "Only refresh websites without a favicon or thumbnail")
	refreshCmd.Flags().Int("batch-size", core.DefaultRefreshBatchSize, "Websites refreshed between pauses")
	refreshCmd.Flags().Duration("batch-delay", core.DefaultBatchDelay, "Pause between batches")
	refreshCmd.Flags().Duration("timeout", core.DefaultRenderTimeout, "Per-request download and render timeout")
	refreshCmd.Flags().String("wait-selector", "", "Optional CSS selector to wait for when rendering (useful for JS-heavy pages)")
}
