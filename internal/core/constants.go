package core

import "time"

// Image kinds, also used as directory names under the image root
const (
	KindFavicon   = "favicons"
	KindThumbnail = "thumbnails"
)

// Timeout defaults for outbound fetches
const (
	DefaultHTTPTimeout      = 15 * time.Second
	DefaultRenderTimeout    = 35 * time.Second
	DefaultNetworkIdleDelay = 500 * time.Millisecond
)

// Resource limits
const (
	MaxResourceSize = 5 * 1024 * 1024 // 5MB
	// MaxImagePixels caps width*height as declared by an image header.
	MaxImagePixels = 40_000_000
)

// Normalized output geometry
const (
	DefaultFaviconSize     = 128
	DefaultThumbnailWidth  = 640
	DefaultThumbnailHeight = 360
	OutputExt              = ".png"
)

// Batch pacing defaults
const (
	DefaultRefreshBatchSize = 5
	DefaultImportBatchSize  = 10
	DefaultBatchDelay       = time.Second
)

// HTTP client configuration
const (
	UserAgent = "Mozilla/5.0 (compatible; hamsternav/1.0)"
)

// faviconPaths are tried in order against the site root before falling back to HTML discovery.
var faviconPaths = []string{
	"/favicon.ico",
	"/apple-touch-icon.png",
	"/apple-touch-icon-precomposed.png",
	"/favicon-32x32.png",
	"/favicon-16x16.png",
}

// faviconLinkSelectors are tried in priority order; the first one with an href wins.
var faviconLinkSelectors = []string{
	`link[rel="icon"]`,
	`link[rel="shortcut icon"]`,
	`link[rel="apple-touch-icon"]`,
}
