package main

import (
	"context"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const attachmentDownloadMarker = "download/attachments/"

// attachmentKind classifies a node the attachment pass may rewrite.
type attachmentKind int

const (
	notAttachment attachmentKind = iota
	attachmentDownloadLink
	attachmentPreviewLink
	attachmentImage
)

func classifyAttachment(n *html.Node) attachmentKind {
	switch n.Data {
	case "a":
		href := dom.GetAttributeOr(n, "href", "")
		if strings.Contains(href, attachmentDownloadMarker) {
			return attachmentDownloadLink
		}
		if strings.Contains(href, "preview=") {
			return attachmentPreviewLink
		}
	case "img":
		if strings.Contains(dom.GetAttributeOr(n, "src", ""), attachmentDownloadMarker) {
			return attachmentImage
		}
		if dom.GetAttributeOr(n, "data-linked-resource-type", "") == "attachment" {
			return attachmentImage
		}
	}
	return notAttachment
}

// attachmentName picks the display name of an attachment reference: the
// explicit alias, then the file name attribute, then the URL.
func attachmentName(n *html.Node, kind attachmentKind) string {
	for _, key := range []string{"data-linked-resource-default-alias", "data-filename"} {
		if v := strings.TrimSpace(dom.GetAttributeOr(n, key, "")); v != "" {
			return v
		}
	}
	switch kind {
	case attachmentDownloadLink:
		return attachmentNameFromURL(dom.GetAttributeOr(n, "href", ""))
	case attachmentPreviewLink:
		return attachmentNameFromPreview(dom.GetAttributeOr(n, "href", ""))
	case attachmentImage:
		return attachmentNameFromURL(dom.GetAttributeOr(n, "src", ""))
	}
	return ""
}

// rewriteAttachments replaces attachment links and images with
// <img src="attachments/<name>" alt="<name>">. References whose name cannot
// be determined are left unchanged.
func rewriteAttachments(_ context.Context, doc *goquery.Document, st *convertStats) {
	doc.Find("a[href], img").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		kind := classifyAttachment(n)
		if kind == notAttachment || !attached(n) {
			return
		}
		name := sanitizeFilename(attachmentName(n, kind))
		if name == "" {
			st.AttachmentsSkipped++
			return
		}
		if replaceNode(n, newImage(attachmentPath(name), name)) {
			st.Attachments++
		}
	})
}
