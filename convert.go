// Convert phase: turn every exported .html file under the output directory
// into a .md file next to it.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gogs/chardet"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// convertOptions configures a conversion batch.
type convertOptions struct {
	outDir      string
	concurrency int
	rewrite     rewriteOpts
	// pages, when set, supplies front matter for each file it knows.
	pages       *manifest
	frontMatter bool
}

// batchResult summarises a conversion batch.
type batchResult struct {
	Converted int
	Failed    int
	Stats     convertStats
}

func (r batchResult) String() string {
	return fmt.Sprintf("%d converted, %d failed; %s; %d missing attachment files",
		r.Converted, r.Failed, r.Stats, r.Stats.MissingAttachments)
}

// toUTF8 returns raw as UTF-8. Bytes that are not valid UTF-8 are decoded
// with the detected charset, falling back to Latin-1.
func toUTF8(raw []byte) []byte {
	if utf8.Valid(raw) {
		return raw
	}
	enc := charmap.ISO8859_1.NewDecoder()
	if res, err := chardet.NewHtmlDetector().DetectBest(raw); err == nil {
		if e, err := htmlindex.Get(res.Charset); err == nil {
			enc = e.NewDecoder()
		}
	}
	out, err := enc.Bytes(raw)
	if err != nil {
		out, _ = charmap.ISO8859_1.NewDecoder().Bytes(raw)
	}
	return out
}

// convertHTML runs the rewrite passes over one page body and renders the
// result as Markdown.
func convertHTML(ctx context.Context, raw []byte, passes []rewritePass) ([]byte, convertStats, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(toUTF8(raw)))
	if err != nil {
		return nil, convertStats{}, fmt.Errorf("parsing HTML: %w", err)
	}
	st := rewriteDocument(ctx, doc, passes)
	md, err := renderMarkdown(doc)
	if err != nil {
		return nil, st, err
	}
	return md, st, nil
}

// markdownPath returns the .md file written for an .html file.
func markdownPath(htmlPath string) string {
	return strings.TrimSuffix(htmlPath, filepath.Ext(htmlPath)) + ".md"
}

// convertFile converts one file and writes the Markdown beside it.
func convertFile(ctx context.Context, path string, opts convertOptions, passes []rewritePass) (convertStats, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return convertStats{}, err
	}
	md, st, err := convertHTML(ctx, raw, passes)
	if err != nil {
		return st, err
	}

	if opts.frontMatter && opts.pages != nil {
		rel, rerr := filepath.Rel(opts.outDir, path)
		if rerr == nil {
			p, perr := opts.pages.ByPath(ctx, rel)
			switch {
			case perr == nil:
				if md, err = withFrontMatter(md, newFrontMatter(p)); err != nil {
					return st, err
				}
			case !errors.Is(perr, errPageNotFound):
				return st, perr
			}
		}
	}

	out := markdownPath(path)
	if err := os.WriteFile(out, md, 0o644); err != nil {
		return st, fmt.Errorf("writing output: %w", err)
	}

	for _, dest := range missingAttachments(md, filepath.Dir(path)) {
		logf("  Warning: %s references missing %s", displayPath(opts.outDir, out), dest)
		st.MissingAttachments++
	}
	return st, nil
}

// findHTMLFiles lists every .html page under root. Symlinks are not followed
// and attachment directories are not entered.
func findHTMLFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && d.Name() == attachmentDir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(path), ".html") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// convertTree converts every page under opts.outDir. A file that fails is
// logged and counted; only a walk failure or cancellation stops the batch.
func convertTree(ctx context.Context, opts convertOptions) (batchResult, error) {
	var res batchResult
	files, err := findHTMLFiles(opts.outDir)
	if err != nil {
		return res, err
	}
	passes := newPipeline(opts.rewrite)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			logf("[%d/%d] Converting %s", i+1, len(files), displayPath(opts.outDir, path))
			st, err := convertFile(gctx, path, opts, passes)

			mu.Lock()
			defer mu.Unlock()
			res.Stats.add(st)
			if err != nil {
				logf("  Error: %s: %v (skipping)", displayPath(opts.outDir, path), err)
				res.Failed++
				return nil
			}
			res.Converted++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}
