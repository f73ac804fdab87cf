/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
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

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import websites from a navigation JSON file",
	Long: `Import reads the frontend navigation file (categories, subcategories and
their websites), creates every website whose URL is not stored yet and fetches
its favicon and thumbnail. Imported websites belong to a default user.

Example usage:

	hamsternav import --file=navigation.json
	hamsternav import --file=navigation.json --skip-images --batch-size=20`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runImport(cmd); err != nil {
			log.Fatal().Err(err).Msg("Import failed")
		}
	},
}

// runImport is the main function for the import command.
func runImport(cmd *cobra.Command) error {
	cfg, err := setup(cmd, "import")
	if err != nil {
		return err
	}

	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return fmt.Errorf("failed to read --file: %w", err)
	}
	skipImages, err := cmd.Flags().GetBool("skip-images")
	if err != nil {
		return fmt.Errorf("failed to read --skip-images: %w", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read navigation file: %w", err)
	}
	entries, err := core.ParseNavigation(data)
	if err != nil {
		return err
	}
	log.Info().Str("file", file).Int("count", len(entries)).Msg("Parsed navigation file")

	database, err := initDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	var fetcher core.MetadataFetcher
	if !skipImages {
		store, err := core.NewImageStore(cfg.Images.Dir, cfg.Images.PublicPrefix)
		if err != nil {
			return err
		}
		fetcher = newFetcher(cfg, store)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := core.RunImport(ctx, database, fetcher, entries, core.ImportOptions{
		BatchSize:  cfg.Import.BatchSize,
		BatchDelay: cfg.Import.BatchDelay,
		SkipImages: skipImages,
		Progress:   progressReporter(cmd.ErrOrStderr(), "importing"),
	})
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d website(s): %d already present, %d failed\n",
		res.Imported, res.Total, res.Skipped, res.Failed)
	return err
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("file", "f", "", "Navigation JSON file to import")
	importCmd.Flags().Bool("skip-images", false, "Create websites without fetching their images")
	importCmd.Flags().Int("batch-size", core.DefaultImportBatchSize, "Websites imported between pauses")
	importCmd.Flags().Duration("batch-delay", core.DefaultBatchDelay, "Pause between batches")
	_ = importCmd.MarkFlagRequired("file")
}
