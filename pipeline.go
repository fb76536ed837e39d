// DOM rewrite pipeline: an ordered list of passes that turn Confluence
// export markup into plain HTML before Markdown rendering.
//
// Every pass is idempotent and total: it never fails on input it does not
// recognise, and running it on a document without matching nodes leaves the
// document unchanged. Passes run strictly in order on the live tree, so a
// node detached by an earlier pass is never rewritten by a later one.
package main

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// convertStats counts what the passes did to one or more documents.
type convertStats struct {
	Attachments        int // anchors/images rewritten to attachments/<name>
	AttachmentsSkipped int // attachment references without a resolvable name
	JiraIssues         int
	Diagrams           int // inline raster images labelled as diagrams
	DiagramsRasterized int
	DiagramsFailed     int
	PageLinks          int // page links resolved to wiki paths
	PageLinksDegraded  int // page links whose lookup failed (href emptied)
	Mentions           int
	MissingAttachments int // image references with no file on disk
}

// add accumulates o into s.
func (s *convertStats) add(o convertStats) {
	s.Attachments += o.Attachments
	s.AttachmentsSkipped += o.AttachmentsSkipped
	s.JiraIssues += o.JiraIssues
	s.Diagrams += o.Diagrams
	s.DiagramsRasterized += o.DiagramsRasterized
	s.DiagramsFailed += o.DiagramsFailed
	s.PageLinks += o.PageLinks
	s.PageLinksDegraded += o.PageLinksDegraded
	s.Mentions += o.Mentions
	s.MissingAttachments += o.MissingAttachments
}

func (s convertStats) String() string {
	return fmt.Sprintf("%d attachments (%d unresolved), %d jira issues, %d diagrams (%d rasterized, %d failed), %d page links (%d degraded), %d mentions",
		s.Attachments, s.AttachmentsSkipped, s.JiraIssues,
		s.Diagrams, s.DiagramsRasterized, s.DiagramsFailed,
		s.PageLinks, s.PageLinksDegraded, s.Mentions)
}

// rewritePass is one step of the pipeline.
type rewritePass struct {
	name  string
	apply func(ctx context.Context, doc *goquery.Document, st *convertStats)
}

// rewriteOpts carries the collaborators some passes need.
type rewriteOpts struct {
	lookup       pageLookup      // page ID -> ancestry; nil degrades every page link
	wikiBase     string          // root of resolved page links, e.g. "wikis/proj"
	skipDiagrams bool            // leave compressed draw.io descriptors untouched
	diagrams     diagramRenderer // nil behaves like skipDiagrams
}

// newPipeline returns the passes in their required order. Stripping must run
// first so removed widgets cannot match the attachment or link passes.
func newPipeline(opts rewriteOpts) []rewritePass {
	return []rewritePass{
		{name: "strip", apply: stripNonConvertible},
		{name: "attachments", apply: rewriteAttachments},
		{name: "jira", apply: rewriteJiraIssues},
		{name: "diagrams", apply: diagramPass(opts.diagrams, opts.skipDiagrams)},
		{name: "page-links", apply: pageLinkPass(opts.lookup, opts.wikiBase)},
		{name: "mentions", apply: rewriteUserMentions},
	}
}

// rewriteDocument runs every pass over doc in order.
func rewriteDocument(ctx context.Context, doc *goquery.Document, passes []rewritePass) convertStats {
	var st convertStats
	for _, p := range passes {
		p.apply(ctx, doc, &st)
	}
	return st
}

// attached reports whether n is still part of a document tree.
func attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

// replaceNode swaps old for repl in old's parent. A detached old is left
// alone and false is returned.
func replaceNode(old, repl *html.Node) bool {
	if old.Parent == nil || !attached(old) {
		return false
	}
	old.Parent.InsertBefore(repl, old)
	old.Parent.RemoveChild(old)
	return true
}

// removeNode detaches n from its parent, if it has one.
func removeNode(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// setAttr sets attribute key on n, adding it when missing.
func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// deleteAttr removes every attribute named key from n.
func deleteAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}
