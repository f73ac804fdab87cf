package core

import (
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rs/zerolog/log"
)

var thumbnailMetaSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="twitter:image"]`,
}

func thumbnailCandidates(loadPage func() (*Page, error)) iter.Seq[string] {
	return func(yield func(string) bool) {
		page, err := loadPage()
		if err != nil {
			log.Debug().Err(err).Msg("Failed to load page for thumbnail discovery")
			return
		}
		if src := findThumbnail(page); src != "" {
			yield(src)
		}
	}
}

// findThumbnail prefers og:image, then twitter:image, then the first <img>
// with a non-empty src. No size or relevance filtering is applied.
func findThumbnail(page *Page) string {
	for _, sel := range thumbnailMetaSelectors {
		content, ok := page.Doc.Find(sel).First().Attr("content")
		if !ok {
			continue
		}
		if resolved := page.Resolve(content); resolved != "" {
			return resolved
		}
	}
	var src string
	page.Doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		raw, _ := img.Attr("src")
		if strings.TrimSpace(raw) == "" {
			return true
		}
		src = page.Resolve(raw)
		return src == ""
	})
	return src
}
