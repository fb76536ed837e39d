package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// diagramAlt labels every embedded diagram image.
const diagramAlt = "diagram"

var diagramSourceSel = cascadia.MustCompile(`div.mxgraph[data-mxgraph], [data-drawio-xml]`)

// isInlineRaster reports whether src is a base64 data URL of a raster image.
func isInlineRaster(src string) bool {
	return strings.HasPrefix(src, "data:image/") &&
		!strings.HasPrefix(src, "data:image/svg") &&
		strings.Contains(src, ";base64,")
}

// diagramDescriptor returns the encoded draw.io descriptor carried by n, if
// any. div.mxgraph viewers hold it in the "xml" field of their JSON config.
func diagramDescriptor(n *html.Node) string {
	if v := dom.GetAttributeOr(n, "data-drawio-xml", ""); v != "" {
		return v
	}
	raw := dom.GetAttributeOr(n, "data-mxgraph", "")
	if raw == "" {
		return ""
	}
	var cfg struct {
		XML string `json:"xml"`
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return ""
	}
	return cfg.XML
}

// diagramPass labels inline raster images as diagrams and, unless skip is
// set, replaces compressed draw.io descriptors with a rasterized image.
// A descriptor that fails to decode or rasterize is left in place.
func diagramPass(renderer diagramRenderer, skip bool) func(context.Context, *goquery.Document, *convertStats) {
	return func(ctx context.Context, doc *goquery.Document, st *convertStats) {
		if !skip && renderer != nil {
			doc.FindMatcher(diagramSourceSel).Each(func(_ int, s *goquery.Selection) {
				n := s.Get(0)
				encoded := diagramDescriptor(n)
				if encoded == "" || !attached(n) {
					return
				}
				src, err := renderer.RenderDiagram(ctx, encoded)
				if err != nil {
					logf("  Warning: diagram not rasterized: %v", err)
					st.DiagramsFailed++
					return
				}
				if replaceNode(n, newImage(src, diagramAlt)) {
					st.DiagramsRasterized++
				}
			})
		}

		doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			if !isInlineRaster(dom.GetAttributeOr(n, "src", "")) {
				return
			}
			setAttr(n, "alt", diagramAlt)
			st.Diagrams++
		})
	}
}
