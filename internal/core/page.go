package core

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// Page is a parsed HTML document together with the URL it was loaded from.
type Page struct {
	URL *url.URL
	Doc *goquery.Document
}

// Resolve resolves ref against the page URL. See resolveURL.
func (p *Page) Resolve(ref string) string {
	return resolveURL(p.URL, ref)
}

// PageSource loads and parses the HTML of a page.
type PageSource interface {
	FetchPage(ctx context.Context, pageURL string) (*Page, error)
}

// HTTPPageSource loads pages with a plain GET through a Downloader.
type HTTPPageSource struct {
	Downloader Downloader
}

// NewHTTPPageSource returns a PageSource backed by d.
func NewHTTPPageSource(d Downloader) *HTTPPageSource {
	return &HTTPPageSource{Downloader: d}
}

// FetchPage downloads pageURL, converts it to UTF-8 and parses it.
func (s *HTTPPageSource) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	resp, err := s.Downloader.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	reader, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to detect charset: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base := resp.URL
	if base == nil {
		base, err = url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page URL: %w", err)
		}
	}
	return &Page{URL: base, Doc: doc}, nil
}
