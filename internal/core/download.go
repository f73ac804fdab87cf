package core

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Downloader issues GET requests for pages and binary resources.
type Downloader interface {
	Get(ctx context.Context, rawURL string) (*Response, error)
}

// Response is a fully read, decoded response body.
type Response struct {
	// URL is the final URL after redirects.
	URL         *url.URL
	ContentType string
	Body        []byte
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Code, e.URL)
}

// IsNotFound reports whether err is a 404 or 410 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusNotFound || se.Code == http.StatusGone
	}
	return false
}

// DownloaderConfig is the explicit configuration of the default HTTP downloader.
type DownloaderConfig struct {
	// Timeout bounds a whole request including reading the body. <= 0 uses DefaultHTTPTimeout.
	Timeout time.Duration
	// UserAgent is sent with every request. Empty uses UserAgent.
	UserAgent string
	// MaxBodySize truncates bodies larger than this many bytes. <= 0 uses MaxResourceSize.
	MaxBodySize int64
	// Transport overrides the round tripper, mostly for tests.
	Transport http.RoundTripper
}

// DefaultDownloaderConfig returns the defaults used when nothing is configured.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Timeout:     DefaultHTTPTimeout,
		UserAgent:   UserAgent,
		MaxBodySize: MaxResourceSize,
	}
}

// HTTPDownloader is the net/http backed Downloader.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	maxSize   int64
}

// NewHTTPDownloader builds a downloader from cfg, filling unset fields with defaults.
func NewHTTPDownloader(cfg DownloaderConfig) *HTTPDownloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = UserAgent
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = MaxResourceSize
	}
	return &HTTPDownloader{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		userAgent: cfg.UserAgent,
		maxSize:   cfg.MaxBodySize,
	}
}

// Get fetches rawURL and returns the decoded body.
func (d *HTTPDownloader) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,image/avif,image/webp,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	// Setting Accept-Encoding disables the transport's transparent gzip, see decodeBody.
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	return &Response{
		URL:         finalURL,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// decodeBody undoes Content-Encoding. Unknown encodings are passed through untouched.
func decodeBody(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, nil
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip decode failed: %w", err)
		}
		defer r.Close()
		return readDecoded(r, "gzip")
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return readDecoded(r, "deflate")
	case "br":
		return readDecoded(brotli.NewReader(bytes.NewReader(body)), "brotli")
	default:
		return body, nil
	}
}

func readDecoded(r io.Reader, name string) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, MaxResourceSize*4))
	if err != nil {
		return nil, fmt.Errorf("%s decode failed: %w", name, err)
	}
	return out, nil
}

// resolveURL resolves a potentially relative URL against a base URL.
// It returns "" for empty, data: and javascript: references.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(refURL).String()
}
