package main

import (
	"context"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// Widgets and decoration that have no Markdown equivalent.
	nonConvertibleSel = cascadia.MustCompile(strings.Join([]string{
		"div.attachment-buttons",
		"a.download-all-link",
		"div.plugin_attachments_upload_container",
		"style",
		"script",
		"img.emoticon",
		"img.confluence-embedded-file-placeholder",
	}, ", "))

	jiraIssueSel = cascadia.MustCompile(
		`span.jira-issue[data-jira-key], span.jira-issue-macro[data-jira-key], [data-macro-name="jira"][data-jira-key]`)

	userLinkSel = cascadia.MustCompile(`a.confluence-userlink, a[data-username]`)
)

// cosmeticAttrs are presentation-only attributes removed from every element.
var cosmeticAttrs = []string{"data-highlight-colour", "data-colorid", "data-mce-style"}

// jiraIssueAlt is the alt text of normalized Jira references; downstream
// tooling matches on it to re-link issues.
const jiraIssueAlt = "jira_issue"

// newImage builds a detached <img src alt> element.
func newImage(src, alt string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     "img",
		DataAtom: atom.Img,
		Attr: []html.Attribute{
			{Key: "src", Val: src},
			{Key: "alt", Val: alt},
		},
	}
}

// stripNonConvertible removes denylisted nodes and cosmetic attributes.
func stripNonConvertible(_ context.Context, doc *goquery.Document, _ *convertStats) {
	doc.FindMatcher(nonConvertibleSel).Each(func(_ int, s *goquery.Selection) {
		removeNode(s.Get(0))
	})
	all := doc.Find("*")
	for _, attr := range cosmeticAttrs {
		all.RemoveAttr(attr)
	}
}

// rewriteJiraIssues replaces Jira issue markers with <img src="KEY" alt="jira_issue">.
// Markers without a key are left alone.
func rewriteJiraIssues(_ context.Context, doc *goquery.Document, st *convertStats) {
	doc.FindMatcher(jiraIssueSel).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		key := strings.TrimSpace(dom.GetAttributeOr(n, "data-jira-key", ""))
		if key == "" {
			return
		}
		if replaceNode(n, newImage(key, jiraIssueAlt)) {
			st.JiraIssues++
		}
	})
}

// rewriteUserMentions replaces user links with a plain "@username" text node.
func rewriteUserMentions(_ context.Context, doc *goquery.Document, st *convertStats) {
	doc.FindMatcher(userLinkSel).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		username, ok := dom.GetAttribute(n, "data-username")
		username = strings.TrimSpace(username)
		if !ok || username == "" {
			return
		}
		text := &html.Node{Type: html.TextNode, Data: "@" + username}
		if replaceNode(n, text) {
			st.Mentions++
		}
	})
}
