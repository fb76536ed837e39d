// draw.io diagram decoding and rasterization.
//
// Confluence stores draw.io diagrams as a URI-encoded <mxfile> whose
// <diagram> element holds base64 text of raw-deflated, URI-encoded diagram
// XML. decodeDiagram peels those layers; rasterizing the result is left to
// the draw.io desktop binary.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/flate"
	"github.com/vincent-petithory/dataurl"
	"golang.org/x/text/encoding/charmap"
)

var (
	errNoDiagram    = errors.New("no <diagram> element")
	errEmptyDiagram = errors.New("empty <diagram> element")
	errNotAnImage   = errors.New("rasterizer output is not an image")
	errNoRasterizer = errors.New("no diagram rasterizer configured")
)

const defaultDrawioBin = "drawio"

type mxFile struct {
	XMLName  xml.Name
	Diagrams []mxDiagram `xml:"diagram"`
}

type mxDiagram struct {
	Text  string `xml:",chardata"`
	Inner string `xml:",innerxml"`
}

// decodeDiagram returns the diagram XML of the first <diagram> in an encoded
// draw.io descriptor. Layers: percent-decode, parse XML, base64, raw
// inflate, Latin-1 to string, percent-decode. A <diagram> that already
// holds an uncompressed <mxGraphModel> is returned as is.
func decodeDiagram(encoded string) (string, error) {
	outer := unquote(encoded)

	var file mxFile
	if err := xml.Unmarshal([]byte(outer), &file); err != nil {
		return "", fmt.Errorf("parsing descriptor xml: %w", err)
	}
	if len(file.Diagrams) == 0 {
		return "", errNoDiagram
	}
	d := file.Diagrams[0]

	if inner := strings.TrimSpace(d.Inner); strings.HasPrefix(inner, "<mxGraphModel") {
		return inner, nil
	}
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return "", errEmptyDiagram
	}

	compressed, err := decodeBase64(text)
	if err != nil {
		return "", fmt.Errorf("decoding diagram base64: %w", err)
	}
	raw, err := io.ReadAll(flate.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return "", fmt.Errorf("inflating diagram: %w", err)
	}
	latin1, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decoding diagram bytes: %w", err)
	}
	return unquote(string(latin1)), nil
}

// unquote percent-decodes s. A "%" that does not start a valid escape, as in
// an uncompressed label like "100% done", is kept as is.
func unquote(s string) string {
	if out, err := url.PathUnescape(s); err == nil {
		return out
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}

// decodeBase64 decodes standard base64, tolerating missing padding and
// embedded whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return data, nil
}

// wrapMxFile wraps bare diagram XML in the <mxfile> envelope draw.io expects.
func wrapMxFile(diagramXML string) string {
	return `<mxfile><diagram id="export" name="Page-1">` + diagramXML + `</diagram></mxfile>`
}

// rasterizer renders diagram XML to image bytes.
type rasterizer interface {
	Rasterize(ctx context.Context, diagramXML string) ([]byte, error)
}

// commandRunner abstracts process execution for testing.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// osRunner is the production runner backed by os/exec. It returns the
// combined output so failures can be reported.
type osRunner struct{}

func (osRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// drawioCLI rasterizes with the draw.io desktop binary in export mode.
type drawioCLI struct {
	bin    string
	runner commandRunner
}

func newDrawioCLI(bin string) *drawioCLI {
	if bin == "" {
		bin = defaultDrawioBin
	}
	return &drawioCLI{bin: bin, runner: osRunner{}}
}

// Rasterize writes the diagram to a private temp directory, exports it to
// PNG and returns the image bytes. The directory is removed on every path.
func (d *drawioCLI) Rasterize(ctx context.Context, diagramXML string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "wikiexport-drawio-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "diagram.drawio")
	out := filepath.Join(dir, "diagram.png")
	if err := os.WriteFile(in, []byte(wrapMxFile(diagramXML)), 0o600); err != nil {
		return nil, fmt.Errorf("writing diagram: %w", err)
	}

	if output, err := d.runner.Run(ctx, d.bin, "-x", "-f", "png", "-o", out, in); err != nil {
		return nil, fmt.Errorf("running %s: %w: %s", d.bin, err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("reading %s output: %w", d.bin, err)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w (%s)", errNotAnImage, mt.String())
	}
	return data, nil
}

// diagramRenderer turns an encoded descriptor into an embeddable image URL.
type diagramRenderer interface {
	RenderDiagram(ctx context.Context, encoded string) (string, error)
}

// drawioRenderer decodes, rasterizes and embeds a diagram as a PNG data URL.
type drawioRenderer struct {
	raster   rasterizer
	maxWidth int // 0 keeps the rasterizer's width
}

func (r *drawioRenderer) RenderDiagram(ctx context.Context, encoded string) (string, error) {
	if r.raster == nil {
		return "", errNoRasterizer
	}
	diagramXML, err := decodeDiagram(encoded)
	if err != nil {
		return "", err
	}
	img, err := r.raster.Rasterize(ctx, diagramXML)
	if err != nil {
		return "", err
	}
	png, err := fitRaster(img, r.maxWidth)
	if err != nil {
		return "", err
	}
	return dataurl.New(png, "image/png").String(), nil
}
