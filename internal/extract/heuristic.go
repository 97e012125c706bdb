package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// denylistSelectors name structural chrome and ad/UI containers removed
// before the content probe.
var denylistSelectors = []string{
	"nav",
	"header",
	"footer",
	"aside",
	"[role=navigation]",
	"[role=banner]",
	"[role=contentinfo]",
	".menu", ".nav", ".navbar", ".breadcrumb",
	".sidebar", "#sidebar",
	".widget",
	".comments", "#comments", ".comment-section",
	".popup", ".modal", ".overlay",
	".advert", ".advertisement", ".ads", ".ad",
	`[class*="ad-"]`, `[class*="ads-"]`,
	`[id*="ad-"]`, `[id*="ads-"]`,
	".social", ".share", ".related", ".newsletter",
}

// contentSelectors is the ordered probe list: first match with enough visible
// text wins, so order encodes preference.
var contentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#main-content",
	".main-content",
	"#content",
	".content",
	".post-content",
	".entry-content",
	".article-content",
	".article-body",
	".post-body",
	".story-body",
	"#article",
	".post",
	".article",
}

// heuristic strips the denylist and probes the content selectors in order,
// returning the first candidate whose normalized text clears the threshold,
// or the whole body when none does.
func (p *Pipeline) heuristic(sanitized string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sanitized))
	if err != nil {
		return "", fmt.Errorf("parse sanitized markup: %w", err)
	}
	for _, selector := range denylistSelectors {
		doc.Find(selector).Remove()
	}

	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := Normalize(sel.Text()); len(text) > p.minTextLen {
			return text, nil
		}
	}

	body := Normalize(doc.Find("body").Text())
	if body == "" {
		return "", ErrNoContent
	}
	return body, nil
}
