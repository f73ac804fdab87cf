package core

import (
	"iter"
	"net/url"

	"github.com/rs/zerolog/log"
)

// faviconCandidates yields the well-known favicon paths on the site origin,
// then the first <link> icon href found in the page.
func faviconCandidates(site *url.URL, loadPage func() (*Page, error)) iter.Seq[string] {
	return func(yield func(string) bool) {
		origin := (&url.URL{Scheme: site.Scheme, Host: site.Host}).String()
		for _, p := range faviconPaths {
			if !yield(origin + p) {
				return
			}
		}

		page, err := loadPage()
		if err != nil {
			log.Debug().Err(err).Str("url", site.String()).Msg("Failed to load page for favicon discovery")
			return
		}
		if href := findFaviconLink(page); href != "" {
			yield(href)
		}
	}
}

// findFaviconLink returns the resolved href of the highest priority icon link.
func findFaviconLink(page *Page) string {
	for _, sel := range faviconLinkSelectors {
		href, ok := page.Doc.Find(sel).First().Attr("href")
		if ok && href != "" {
			return page.Resolve(href)
		}
	}
	return ""
}
