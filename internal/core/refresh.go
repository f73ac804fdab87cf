package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/rs/zerolog/log"
)

// RefreshOptions describes a refresh run: either one website by ID, or a
// paced batch over all websites.
type RefreshOptions struct {
	// ID, if > 0, refreshes only the website with this ID.
	ID int64
	// Limit bounds the number of websites refreshed in batch mode. <= 0 means all.
	Limit int
	// OnlyMissing restricts batch mode to websites without a favicon or thumbnail.
	OnlyMissing bool
	// BatchSize is the number of websites processed between pauses.
	// If <= 0, DefaultRefreshBatchSize is used.
	BatchSize int
	// BatchDelay is the pause after each batch. Zero disables pacing.
	BatchDelay time.Duration
	// Progress, if set, is called after every website with the number done and the total.
	Progress func(done, total int)
}

// RefreshResult reports the outcome of a refresh run.
type RefreshResult struct {
	Attempted int
	Updated   int
	Unchanged int
	Failed    int
}

// FetchAndPersist fetches images for w and stores the paths that changed.
// It reports whether the website row was updated.
func FetchAndPersist(ctx context.Context, database *db.DB, fetcher MetadataFetcher, w db.Website) (bool, error) {
	md, err := fetcher.FetchMetadata(ctx, w.URL, strconv.FormatInt(w.ID, 10))
	if err != nil {
		return false, fmt.Errorf("fetch metadata for website %d: %w", w.ID, err)
	}

	favicon := changedPath(md.Favicon, w.Favicon)
	thumbnail := changedPath(md.Thumbnail, w.Thumbnail)
	if favicon == "" && thumbnail == "" {
		return false, nil
	}
	if err := database.SaveWebsiteImages(w.ID, favicon, thumbnail); err != nil {
		return false, err
	}
	log.Info().
		Int64("id", w.ID).
		Str("favicon", favicon).
		Str("thumbnail", thumbnail).
		Msg("Website images updated")
	return true, nil
}

// changedPath returns fetched if it is present and differs from stored.
func changedPath(fetched, stored string) string {
	if fetched == "" || fetched == stored {
		return ""
	}
	return fetched
}

// RunRefresh re-fetches images for websites, sequentially, pausing
// opts.BatchDelay after every opts.BatchSize websites. A failing website is
// logged and skipped; the returned error summarizes failures.
func RunRefresh(ctx context.Context, database *db.DB, fetcher MetadataFetcher, opts RefreshOptions) (RefreshResult, error) {
	if opts.ID > 0 {
		w, err := database.GetWebsite(opts.ID)
		if err != nil {
			return RefreshResult{}, err
		}
		updated, err := FetchAndPersist(ctx, database, fetcher, w)
		if err != nil {
			return RefreshResult{Attempted: 1, Failed: 1}, err
		}
		if updated {
			return RefreshResult{Attempted: 1, Updated: 1}, nil
		}
		return RefreshResult{Attempted: 1, Unchanged: 1}, nil
	}

	websites, err := database.ListWebsitesForRefresh(opts.Limit, opts.OnlyMissing)
	if err != nil {
		return RefreshResult{}, err
	}
	if len(websites) == 0 {
		log.Info().Msg("No websites to refresh")
		return RefreshResult{}, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultRefreshBatchSize
	}

	log.Info().Int("count", len(websites)).Int("batch_size", batchSize).Dur("batch_delay", opts.BatchDelay).Msg("Refreshing website images")
	var res RefreshResult
	for i, w := range websites {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Attempted++
		updated, err := FetchAndPersist(ctx, database, fetcher, w)
		switch {
		case err != nil:
			res.Failed++
			log.Error().Err(err).Int64("id", w.ID).Str("url", w.URL).Msg("Refresh failed")
		case updated:
			res.Updated++
		default:
			res.Unchanged++
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(websites))
		}

		if (i+1)%batchSize == 0 && i+1 < len(websites) {
			if err := pause(ctx, opts.BatchDelay); err != nil {
				return res, err
			}
		}
	}

	log.Info().
		Int("attempted", res.Attempted).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Int("failed", res.Failed).
		Msg("Refresh finished")
	if res.Failed > 0 {
		return res, fmt.Errorf("refresh finished with %d failure(s)", res.Failed)
	}
	return res, nil
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
