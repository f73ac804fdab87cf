package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Owner of imported websites
const (
	DefaultImportNickname = "默认用户"
	DefaultImportAvatar   = "https://via.placeholder.com/100"
	DefaultImportEmail    = "default@example.com"
)

// NavWebsite is one entry of a navigation file, flattened with its category.
type NavWebsite struct {
	Title       string
	URL         string
	Description string
	Category    string
	Tags        []string
}

// ParseNavigation reads the frontend navigation JSON:
//
//	[{"name": "...", "subcategories": [{"name": "...", "websites": [{"name", "url", "description", "tags"}]}]}]
//
// Each website gets the top-level name as category and the subcategory name
// as an extra tag. Entries without a URL are dropped.
func ParseNavigation(data []byte) ([]NavWebsite, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("navigation data is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, errors.New("navigation data must be an array of categories")
	}

	var out []NavWebsite
	root.ForEach(func(_, category gjson.Result) bool {
		categoryName := strings.TrimSpace(category.Get("name").String())
		category.Get("subcategories").ForEach(func(_, sub gjson.Result) bool {
			subName := strings.TrimSpace(sub.Get("name").String())
			sub.Get("websites").ForEach(func(_, site gjson.Result) bool {
				rawURL := strings.TrimSpace(site.Get("url").String())
				if rawURL == "" {
					return true
				}
				title := site.Get("name").String()
				if title == "" {
					title = site.Get("title").String()
				}
				var tags []string
				site.Get("tags").ForEach(func(_, tag gjson.Result) bool {
					tags = append(tags, tag.String())
					return true
				})
				if subName != "" {
					tags = append(tags, subName)
				}
				out = append(out, NavWebsite{
					Title:       strings.TrimSpace(title),
					URL:         rawURL,
					Description: strings.TrimSpace(site.Get("description").String()),
					Category:    categoryName,
					Tags:        tags,
				})
				return true
			})
			return true
		})
		return true
	})
	return out, nil
}

// ImportOptions controls RunImport.
type ImportOptions struct {
	// BatchSize is the number of imported websites between pauses.
	// If <= 0, DefaultImportBatchSize is used.
	BatchSize int
	// BatchDelay is the pause after each batch. Zero disables pacing.
	BatchDelay time.Duration
	// SkipImages imports records without fetching favicons and thumbnails.
	SkipImages bool
	// Progress, if set, is called after every entry with the number done and the total.
	Progress func(done, total int)
}

// ImportResult reports the outcome of RunImport.
type ImportResult struct {
	Total    int
	Imported int
	Skipped  int
	Failed   int
}

// RunImport creates a website for every navigation entry whose URL is not yet
// stored, owned by the default import user, and fetches its images.
func RunImport(ctx context.Context, database *db.DB, fetcher MetadataFetcher, entries []NavWebsite, opts ImportOptions) (ImportResult, error) {
	owner, err := database.EnsureUser(DefaultImportNickname, DefaultImportAvatar, DefaultImportEmail)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to prepare import user: %w", err)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultImportBatchSize
	}

	res := ImportResult{Total: len(entries)}
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		imported, err := importOne(ctx, database, fetcher, owner, entry, opts.SkipImages)
		switch {
		case err != nil:
			res.Failed++
			log.Error().Err(err).Str("url", entry.URL).Str("title", entry.Title).Msg("Import failed")
		case imported:
			res.Imported++
		default:
			res.Skipped++
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(entries))
		}

		if imported && res.Imported%batchSize == 0 && i+1 < len(entries) {
			log.Debug().Int("imported", res.Imported).Msg("Pausing import")
			if err := pause(ctx, opts.BatchDelay); err != nil {
				return res, err
			}
		}
	}

	log.Info().
		Int("total", res.Total).
		Int("imported", res.Imported).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Import finished")
	return res, nil
}

func importOne(ctx context.Context, database *db.DB, fetcher MetadataFetcher, owner db.User, entry NavWebsite, skipImages bool) (bool, error) {
	u, err := NormalizeURL(entry.URL)
	if err != nil {
		return false, err
	}
	rawURL := u.String()

	if _, err := database.GetWebsiteByURL(rawURL); err == nil {
		return false, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return false, err
	}

	title := entry.Title
	if title == "" {
		title = u.Hostname()
	}
	w, err := database.CreateWebsite(db.Website{
		Title:       title,
		URL:         rawURL,
		Description: entry.Description,
		Category:    entry.Category,
		Tags:        entry.Tags,
		Creator:     db.UserRef{ID: owner.ID},
		IsPublic:    true,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicateURL) {
			return false, nil
		}
		return false, err
	}

	if !skipImages {
		md, err := fetcher.FetchMetadata(ctx, w.URL, strconv.FormatInt(w.ID, 10))
		if err != nil {
			log.Warn().Err(err).Int64("id", w.ID).Msg("Skipping images for imported website")
		} else if err := database.SaveWebsiteImages(w.ID, md.Favicon, md.Thumbnail); err != nil {
			return true, err
		}
	}
	log.Info().Int64("id", w.ID).Str("title", w.Title).Msg("Imported website")
	return true, nil
}
