// Pretty-printed HTML for tables kept verbatim in Markdown output.
package main

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// voidElements never get a closing tag.
var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Wbr: true,
}

// tableHTML serializes a table subtree one tag per line with one space of
// indentation per level. Class attributes are dropped below the table
// element, images are written as Markdown, and <pre> content is kept as is
// apart from blank lines.
func tableHTML(table *html.Node) string {
	var buf bytes.Buffer
	writePrettyHTML(&buf, table, 0)
	return strings.TrimRight(buf.String(), "\n")
}

func writePrettyHTML(buf *bytes.Buffer, n *html.Node, depth int) {
	indent := strings.Repeat(" ", depth)
	switch n.Type {
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" {
			return
		}
		buf.WriteString(indent)
		buf.WriteString(html.EscapeString(text))
		buf.WriteByte('\n')

	case html.ElementNode:
		if n.DataAtom == atom.Img {
			buf.WriteString(indent)
			buf.WriteString(imageMarkdown(n))
			buf.WriteByte('\n')
			return
		}

		buf.WriteString(indent)
		writeStartTag(buf, n, depth > 0)
		if voidElements[n.DataAtom] {
			buf.WriteByte('\n')
			return
		}

		if n.DataAtom == atom.Pre {
			var pre bytes.Buffer
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				html.Render(&pre, c)
			}
			buf.WriteString(encodeBlankLines(pre.String()))
			buf.WriteString("</pre>\n")
			return
		}

		buf.WriteByte('\n')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writePrettyHTML(buf, c, depth+1)
		}
		buf.WriteString(indent)
		buf.WriteString("</")
		buf.WriteString(n.Data)
		buf.WriteString(">\n")

	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writePrettyHTML(buf, c, depth)
		}
	}
}

// encodeBlankLines writes the newline before each whitespace-only line as a
// character reference. A blank line would end the Markdown HTML block.
func encodeBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var b strings.Builder
	b.Grow(len(s))
	for i, line := range lines {
		if i > 0 {
			if strings.TrimSpace(line) == "" {
				b.WriteString("&#10;")
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
	}
	return b.String()
}

func writeStartTag(buf *bytes.Buffer, n *html.Node, dropClass bool) {
	buf.WriteByte('<')
	buf.WriteString(n.Data)
	for _, a := range n.Attr {
		if dropClass && a.Key == "class" {
			continue
		}
		buf.WriteByte(' ')
		if a.Namespace != "" {
			buf.WriteString(a.Namespace)
			buf.WriteByte(':')
		}
		buf.WriteString(a.Key)
		buf.WriteString(`="`)
		buf.WriteString(html.EscapeString(a.Val))
		buf.WriteByte('"')
	}
	buf.WriteByte('>')
}
