package main

import (
	"context"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var pageLinkSel = cascadia.MustCompile(`a[href*="pages/viewpage.action?"]`)

// pageIDFromHref returns the numeric pageId query parameter of a
// "view page by ID" link, or "" when there is none.
func pageIDFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	id := strings.TrimSpace(u.Query().Get("pageId"))
	if id == "" {
		return ""
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id
}

// wikiPagePath builds "<base>/<ancestor>/.../<title>" with every segment
// sanitized and percent-encoded. Untitled ancestors are skipped.
func wikiPagePath(base string, p pagePath) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	for _, title := range append(append([]string(nil), p.Ancestors...), p.Title) {
		seg := sanitizeFilename(title)
		if seg == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}

// pageLinkPass resolves links to other pages into wiki paths. A failed
// lookup empties the href so the renderer degrades the link to its text;
// the document conversion itself carries on.
func pageLinkPass(lookup pageLookup, base string) func(context.Context, *goquery.Document, *convertStats) {
	return func(ctx context.Context, doc *goquery.Document, st *convertStats) {
		doc.FindMatcher(pageLinkSel).Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			if !attached(n) {
				return
			}
			id := pageIDFromHref(dom.GetAttributeOr(n, "href", ""))
			if id == "" {
				return
			}

			var (
				p   pagePath
				err error
			)
			if lookup == nil {
				err = errNoLookup
			} else {
				p, err = lookup.Ancestry(ctx, id)
			}
			if err != nil {
				logf("  Warning: page link %s unresolved: %v", id, err)
				setAttr(n, "href", "")
				st.PageLinksDegraded++
				return
			}

			setAttr(n, "href", wikiPagePath(base, p))
			deleteAttr(n, "title")
			st.PageLinks++
		})
	}
}
