package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidURL is returned when a website URL cannot be turned into an http(s) URL with a host.
	ErrInvalidURL = errors.New("invalid website URL")
	// ErrInvalidRecordID is returned for record identifiers that are not safe file names.
	ErrInvalidRecordID = errors.New("invalid record id")
)

// Metadata holds the public paths of the images found for a website.
// An empty string means the image could not be resolved.
type Metadata struct {
	Favicon   string `json:"favicon,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// MetadataFetcher resolves favicon and thumbnail images for a website.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, rawURL, recordID string) (Metadata, error)
}

// Fetcher is the default MetadataFetcher. It downloads candidate images,
// normalizes them and writes them to an ImageStore.
type Fetcher struct {
	downloader Downloader
	pages      PageSource
	normalizer *Normalizer
	store      *ImageStore
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithPageSource replaces how HTML pages are loaded, e.g. with a ChromePageSource.
func WithPageSource(p PageSource) FetcherOption {
	return func(f *Fetcher) { f.pages = p }
}

// WithNormalizer sets the output geometry.
func WithNormalizer(n *Normalizer) FetcherOption {
	return func(f *Fetcher) { f.normalizer = n }
}

// NewFetcher returns a Fetcher that downloads through d and stores into store.
// Pages are loaded through d unless WithPageSource is given.
func NewFetcher(d Downloader, store *ImageStore, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		downloader: d,
		pages:      NewHTTPPageSource(d),
		normalizer: NewNormalizer(0, 0, 0),
		store:      store,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NormalizeURL trims raw, adds http:// when no scheme is present and checks
// that the result is an http or https URL with a host.
func NormalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// ValidateRecordID accepts identifiers made of letters, digits, '-' and '_'.
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRecordID)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidRecordID, id)
		}
	}
	return nil
}

// FetchMetadata resolves the favicon and thumbnail of rawURL concurrently and
// stores them under recordID. Failures of individual candidates only leave the
// corresponding path empty; an error is returned only for an unusable URL or
// record identifier.
func (f *Fetcher) FetchMetadata(ctx context.Context, rawURL, recordID string) (Metadata, error) {
	site, err := NormalizeURL(rawURL)
	if err != nil {
		return Metadata{}, err
	}
	if err := ValidateRecordID(recordID); err != nil {
		return Metadata{}, err
	}

	// Both pipelines share a single page load.
	loadPage := sync.OnceValues(func() (*Page, error) {
		return f.pages.FetchPage(ctx, site.String())
	})

	var md Metadata
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		md.Favicon = f.resolve(ctx, KindFavicon, recordID, faviconCandidates(site, loadPage))
	}()
	go func() {
		defer wg.Done()
		md.Thumbnail = f.resolve(ctx, KindThumbnail, recordID, thumbnailCandidates(loadPage))
	}()
	wg.Wait()

	log.Debug().
		Str("url", site.String()).
		Str("id", recordID).
		Str("favicon", md.Favicon).
		Str("thumbnail", md.Thumbnail).
		Msg("Fetched website metadata")
	return md, nil
}

// writeError marks a failure to persist an image, as opposed to a bad candidate.
type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// resolve tries candidates in order and returns the public path of the first
// one that downloads, decodes and saves. A write failure ends the pipeline.
func (f *Fetcher) resolve(ctx context.Context, kind, id string, candidates iter.Seq[string]) (path string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("kind", kind).Str("id", id).Interface("panic", r).Msg("Image pipeline panicked")
			recordFetch(kind, OutcomeNotFound, start)
			path = ""
		}
	}()
	for candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		saved, err := f.saveCandidate(ctx, kind, id, candidate)
		if err == nil {
			recordFetch(kind, OutcomeOK, start)
			return saved
		}
		var we *writeError
		if errors.As(err, &we) {
			log.Error().Err(err).Str("kind", kind).Str("id", id).Str("candidate", candidate).Msg("Failed to save image")
			recordFetch(kind, OutcomeWriteError, start)
			return ""
		}
		log.Debug().Err(err).Str("kind", kind).Str("candidate", candidate).Msg("Image candidate failed")
	}
	recordFetch(kind, OutcomeNotFound, start)
	return ""
}

func (f *Fetcher) saveCandidate(ctx context.Context, kind, id, candidate string) (saved string, err error) {
	// Decoders panic on some malformed input; that is a failed candidate.
	defer func() {
		if r := recover(); r != nil {
			saved, err = "", fmt.Errorf("panic while processing %s: %v", candidate, r)
		}
	}()

	resp, err := f.downloader.Get(ctx, candidate)
	if err != nil {
		return "", err
	}
	data, err := f.normalizer.Normalize(kind, resp.Body)
	if err != nil {
		return "", err
	}
	saved, err = f.store.Save(kind, id, data)
	if err != nil {
		return "", &writeError{err: err}
	}
	return saved, nil
}
