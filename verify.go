// Post-write check of generated Markdown: every attachment image it
// references must exist next to the page.
package main

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// imageDestinations returns the destination of every image in md, in
// document order. Tables are kept as raw HTML blocks with one image per line,
// so those lines are parsed on their own.
func imageDestinations(md []byte) []string {
	var dests []string
	collectImages(md, &dests, true)
	return dests
}

func collectImages(src []byte, dests *[]string, nested bool) {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Image:
			*dests = append(*dests, string(n.Destination))
		case *ast.HTMLBlock:
			if !nested {
				return ast.WalkSkipChildren, nil
			}
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				line := bytes.TrimSpace(seg.Value(src))
				if bytes.HasPrefix(line, []byte("![")) {
					collectImages(line, dests, false)
				}
			}
		}
		return ast.WalkContinue, nil
	})
}

// missingAttachments returns the attachments/ image destinations in md that
// have no file under dir.
func missingAttachments(md []byte, dir string) []string {
	var missing []string
	for _, dest := range imageDestinations(md) {
		if !strings.HasPrefix(dest, attachmentDir+"/") {
			continue
		}
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(dest)))
		if errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, dest)
		}
	}
	return missing
}
