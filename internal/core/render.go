package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// RenderOptions controls how a page is rendered in Chrome before metadata is read.
//
// Rendering uses a real Chrome/Chromium browser (via the DevTools protocol) so
// sites that inject their <link rel="icon"> or og:image tags from JavaScript
// expose them before we parse the DOM.
type RenderOptions struct {
	// ChromePath is the browser binary; chromedp looks one up when empty.
	ChromePath string
	Headless   bool
	// Timeout bounds one render. Zero means DefaultRenderTimeout.
	Timeout time.Duration
	// WaitSelector, when set, must be visible before the DOM is captured.
	WaitSelector string
}

// ChromePageSource is a PageSource that renders pages in headless Chrome.
type ChromePageSource struct {
	Options RenderOptions
}

// NewChromePageSource returns a renderer with opts, applying the default timeout.
func NewChromePageSource(opts RenderOptions) *ChromePageSource {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRenderTimeout
	}
	return &ChromePageSource{Options: opts}
}

func (s *ChromePageSource) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.UserAgent(UserAgent),
	)
	if s.Options.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.Options.ChromePath))
	}
	if s.Options.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// FetchPage navigates to pageURL, waits for network idle and returns the rendered DOM.
func (s *ChromePageSource) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	log.Debug().Str("url", pageURL).Msg("Rendering page in Chrome")

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, s.allocatorOptions()...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, s.Options.Timeout)
	defer cancelRun()

	var html string
	var finalURL string

	waitForNetworkIdle := func(ctx context.Context) error {
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}

		idle := make(chan struct{}, 1)
		chromedp.ListenTarget(ctx, func(ev interface{}) {
			if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		})

		if err := chromedp.Navigate(pageURL).Do(ctx); err != nil {
			return err
		}

		select {
		case <-idle:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	actions := []chromedp.Action{
		chromedp.ActionFunc(waitForNetworkIdle),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if strings.TrimSpace(s.Options.WaitSelector) != "" {
		actions = append(actions, chromedp.WaitVisible(s.Options.WaitSelector, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Sleep(DefaultNetworkIdleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered HTML: %w", err)
	}

	base, err := url.Parse(finalURL)
	if err != nil || base.Host == "" {
		if base, err = url.Parse(pageURL); err != nil {
			return nil, fmt.Errorf("invalid page URL: %w", err)
		}
	}
	return &Page{URL: base, Doc: doc}, nil
}
