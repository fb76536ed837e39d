package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func fixedLookup(pages map[string]pagePath) pageLookup {
	return lookupFunc(func(ctx context.Context, id string) (pagePath, error) {
		p, ok := pages[id]
		if !ok {
			return pagePath{}, fmt.Errorf("page %s: %w", id, errPageNotFound)
		}
		return p, nil
	})
}

func TestPageIDFromHref(t *testing.T) {
	tests := []struct {
		href, want string
	}{
		{"/pages/viewpage.action?pageId=42", "42"},
		{"https://wiki/pages/viewpage.action?spaceKey=X&pageId=1234#frag", "1234"},
		{"/pages/viewpage.action?title=Foo", ""},
		{"/pages/viewpage.action?pageId=abc", ""},
		{"/pages/viewpage.action?pageId=", ""},
	}
	for _, tt := range tests {
		if got := pageIDFromHref(tt.href); got != tt.want {
			t.Errorf("pageIDFromHref(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestWikiPagePath(t *testing.T) {
	tests := []struct {
		base string
		p    pagePath
		want string
	}{
		{"wikis/proj", pagePath{Title: "Child Page", Ancestors: []string{"Space Home", "Team"}}, "wikis/proj/Space%20Home/Team/Child%20Page"},
		{"wikis/proj/", pagePath{Title: "Top"}, "wikis/proj/Top"},
		{"/g/p/-/wikis", pagePath{Title: "A/B", Ancestors: []string{"", "x?y"}}, "/g/p/-/wikis/x%3Fy/A_B"},
		{"", pagePath{Title: "Solo"}, "/Solo"},
	}
	for _, tt := range tests {
		if got := wikiPagePath(tt.base, tt.p); got != tt.want {
			t.Errorf("wikiPagePath(%q, %+v) = %q, want %q", tt.base, tt.p, got, tt.want)
		}
	}
}

func TestPageLinkPass_Resolved(t *testing.T) {
	doc := mustDoc(t, `<body><p><a href="/pages/viewpage.action?pageId=42" title="Child Page">child</a></p></body>`)
	lookup := fixedLookup(map[string]pagePath{
		"42": {Title: "Child Page", Ancestors: []string{"Space Home", "Team"}},
	})

	var st convertStats
	pageLinkPass(lookup, "wikis/proj")(context.Background(), doc, &st)

	a := doc.Find("p a")
	if got := a.AttrOr("href", "?"); got != "wikis/proj/Space%20Home/Team/Child%20Page" {
		t.Errorf("href = %q", got)
	}
	if _, ok := a.Attr("title"); ok {
		t.Error("title attribute should be removed once resolved")
	}
	if st.PageLinks != 1 || st.PageLinksDegraded != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestPageLinkPass_LookupFailureDegrades(t *testing.T) {
	for _, lookupErr := range []error{errPageNotFound, &apiError{Status: 500}, errDuplicatePage, errors.New("dial tcp: timeout")} {
		doc := mustDoc(t, `<body><p><a href="/pages/viewpage.action?pageId=42" title="T">gone</a></p></body>`)
		lookup := lookupFunc(func(ctx context.Context, id string) (pagePath, error) {
			return pagePath{}, lookupErr
		})

		var st convertStats
		pageLinkPass(lookup, "wikis/proj")(context.Background(), doc, &st)

		a := doc.Find("p a")
		if got, ok := a.Attr("href"); !ok || got != "" {
			t.Errorf("%v: href = %q (present %v), want empty", lookupErr, got, ok)
		}
		if a.Text() != "gone" {
			t.Errorf("%v: link text changed to %q", lookupErr, a.Text())
		}
		if st.PageLinksDegraded != 1 {
			t.Errorf("%v: PageLinksDegraded = %d", lookupErr, st.PageLinksDegraded)
		}
	}
}

func TestPageLinkPass_NilLookupDegrades(t *testing.T) {
	doc := mustDoc(t, `<body><a href="/pages/viewpage.action?pageId=1">x</a></body>`)
	var st convertStats
	pageLinkPass(nil, "w")(context.Background(), doc, &st)
	if doc.Find("a").AttrOr("href", "?") != "" {
		t.Error("expected empty href without a lookup")
	}
}

func TestPageLinkPass_NoPageIDUntouched(t *testing.T) {
	src := `<body><a href="/pages/viewpage.action?title=Foo&spaceKey=X" title="keep">x</a></body>`
	doc := mustDoc(t, src)
	before := bodyHTML(t, doc)

	called := false
	lookup := lookupFunc(func(ctx context.Context, id string) (pagePath, error) {
		called = true
		return pagePath{}, nil
	})
	var st convertStats
	pageLinkPass(lookup, "w")(context.Background(), doc, &st)

	if called {
		t.Error("lookup should not be called without a page ID")
	}
	if got := bodyHTML(t, doc); got != before {
		t.Errorf("anchor changed:\n%s", got)
	}
}
