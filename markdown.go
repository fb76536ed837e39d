// Markdown rendering of rewritten page documents.
// Uses the commonmark rules of html-to-markdown with three overrides: tables
// stay raw HTML, images always render as image syntax, and links with an
// empty href render as their text.
package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/dom"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	mdConverter     *converter.Converter
	mdConverterOnce sync.Once
)

// getMarkdownConverter returns the shared converter.
// PriorityEarly (100) runs the overrides before the commonmark plugin
// (PriorityStandard 500).
func getMarkdownConverter() *converter.Converter {
	mdConverterOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		)
		// Images render the same everywhere, including headings and table cells.
		mdConverter.Register.RendererFor("img", converter.TagTypeInline,
			func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
				w.WriteString(imageMarkdown(n))
				return converter.RenderSuccess
			},
			converter.PriorityEarly,
		)
		// A link whose target could not be resolved keeps only its text.
		mdConverter.Register.RendererFor("a", converter.TagTypeInline,
			func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
				href, ok := dom.GetAttribute(n, "href")
				if !ok || strings.TrimSpace(href) != "" {
					return converter.RenderTryNext
				}
				ctx.RenderChildNodes(ctx, w, n)
				return converter.RenderSuccess
			},
			converter.PriorityEarly,
		)
		// Markdown tables cannot hold block content, so tables stay HTML.
		mdConverter.Register.RendererFor("table", converter.TagTypeBlock,
			func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
				w.WriteString("\n\n")
				w.WriteString(tableHTML(n))
				w.WriteString("\n\n")
				return converter.RenderSuccess
			},
			converter.PriorityEarly,
		)
	})
	return mdConverter
}

// imageMarkdown renders n as ![alt](src "title"). The title clause is only
// present when n has a title attribute. Brackets and backslashes in alt are
// escaped.
func imageMarkdown(n *html.Node) string {
	alt := altEscaper.Replace(dom.GetAttributeOr(n, "alt", ""))
	dest := markdownDestination(dom.GetAttributeOr(n, "src", ""))
	title, ok := dom.GetAttribute(n, "title")
	if !ok {
		return "![" + alt + "](" + dest + ")"
	}
	return "![" + alt + "](" + dest + ` "` + titleEscaper.Replace(title) + `")`
}

var (
	// Brackets in alt text would end the image description early.
	altEscaper   = strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`)
	titleEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	angleEscaper = strings.NewReplacer("<", `\<`, ">", `\>`)
)

// markdownDestination returns src as a link destination. Attachment names
// often contain spaces, which end a bare destination, so such sources use
// the <...> form.
func markdownDestination(src string) string {
	if !strings.ContainsAny(src, " ()<>") {
		return src
	}
	return "<" + angleEscaper.Replace(src) + ">"
}

// renderMarkdown converts a rewritten document to Markdown. The result is
// trimmed and ends with a single newline, or is empty.
func renderMarkdown(doc *goquery.Document) ([]byte, error) {
	md, err := getMarkdownConverter().ConvertNode(doc.Get(0))
	if err != nil {
		return nil, fmt.Errorf("markdown conversion: %w", err)
	}
	md = []byte(strings.TrimSpace(string(md)))
	if len(md) == 0 {
		return md, nil
	}
	return append(md, '\n'), nil
}
