// Fetch phase: mirror every page and attachment of the selected spaces into
// <out_dir>/<space>/<ancestor>/.../<title>.html.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	errDuplicatePage = errors.New("duplicate page ID")
	errNoHomepage    = errors.New("space has no homepage")
)

// exportStats counts what one export run wrote.
type exportStats struct {
	Spaces             int
	Pages              int
	Attachments        int
	AttachmentsFailed  int
	AttachmentsSkipped int
}

func (s exportStats) String() string {
	return fmt.Sprintf("%d spaces, %d pages, %d attachments (%d failed)",
		s.Spaces, s.Pages, s.Attachments, s.AttachmentsFailed)
}

type exporter struct {
	client          *confluenceClient
	manifest        *manifest
	outDir          string
	spaces          []string // space keys to export; empty means all
	skipAttachments bool
	concurrency     int

	seen map[string]bool
}

// pageTask is a page waiting on the traversal stack.
type pageTask struct {
	id        string
	parentID  string
	ancestors []string // raw titles from the space homepage down
}

func (e *exporter) wantSpace(key string) bool {
	return len(e.spaces) == 0 || slices.Contains(e.spaces, key)
}

// run exports every selected space. A space without a homepage and a page
// reached twice both abort the whole run.
func (e *exporter) run(ctx context.Context) (exportStats, error) {
	var st exportStats
	e.seen = map[string]bool{}

	spaces, err := e.client.spaces(ctx)
	if err != nil {
		return st, fmt.Errorf("listing spaces: %w", err)
	}
	for _, sp := range spaces {
		if !e.wantSpace(sp.Key) {
			continue
		}
		logf("Processing space %s", sp.Key)
		if sp.Homepage == nil || sp.Homepage.ID == "" {
			logf("Skipping space: %s, no homepage found!", sp.Key)
			return st, fmt.Errorf("space %s: %w", sp.Key, errNoHomepage)
		}
		if err := e.exportSpace(ctx, sp.Key, sp.Homepage.ID, &st); err != nil {
			return st, err
		}
		st.Spaces++
	}
	return st, nil
}

// exportSpace walks the page tree depth first from the homepage using an
// explicit stack. Children are pushed in reverse so they are written in API
// order.
func (e *exporter) exportSpace(ctx context.Context, spaceKey, homepageID string, st *exportStats) error {
	stack := []pageTask{{id: homepageID}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.seen[t.id] {
			return fmt.Errorf("page %s: %w", t.id, errDuplicatePage)
		}
		e.seen[t.id] = true

		p, err := e.client.page(ctx, t.id)
		if err != nil {
			return err
		}
		children, err := e.client.childPageIDs(ctx, t.id)
		if err != nil {
			return err
		}

		rel, err := e.writePage(spaceKey, t.ancestors, p)
		if err != nil {
			return err
		}
		st.Pages++

		if !e.skipAttachments {
			if err := e.fetchAttachments(ctx, p.ID, path.Dir(rel), st); err != nil {
				return err
			}
		}

		err = e.manifest.Put(ctx, manifestPage{
			ID:        p.ID,
			SpaceKey:  spaceKey,
			Title:     p.Title,
			ParentID:  t.parentID,
			Ancestors: t.ancestors,
			Path:      rel,
			Version:   p.Version.Number,
			UpdatedAt: p.Version.When,
		})
		if err != nil {
			return err
		}

		childAncestors := append(slices.Clip(t.ancestors), p.Title)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, pageTask{id: children[i], parentID: p.ID, ancestors: childAncestors})
		}
	}
	return nil
}

// pageRelPath returns the slash-separated location of a page file below the
// output directory.
func pageRelPath(spaceKey string, ancestors []string, title string) string {
	segs := []string{sanitizeFilename(spaceKey)}
	for _, a := range ancestors {
		segs = append(segs, sanitizeFilename(a))
	}
	segs = append(segs, sanitizeFilename(title)+".html")
	return path.Join(segs...)
}

func (e *exporter) writePage(spaceKey string, ancestors []string, p apiPage) (string, error) {
	rel := pageRelPath(spaceKey, ancestors, p.Title)
	dst := filepath.Join(e.outDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, []byte(p.Body.ExportView.Value), 0o644); err != nil {
		return "", fmt.Errorf("writing page %s: %w", p.ID, err)
	}
	logf("Saving to %s", strings.Join(strings.Split(rel, "/"), " / "))
	return rel, nil
}

// fetchAttachments downloads every attachment of a page into
// <relDir>/attachments. A failed download is logged and counted; the page
// itself is still exported.
func (e *exporter) fetchAttachments(ctx context.Context, pageID, relDir string, st *exportStats) error {
	atts, err := e.client.attachments(ctx, pageID)
	if err != nil {
		return err
	}
	if len(atts) == 0 {
		return nil
	}
	dir := filepath.Join(e.outDir, filepath.FromSlash(relDir), attachmentDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.concurrency, 1))
	for _, a := range atts {
		g.Go(func() error {
			name := sanitizeFilename(a.Title)
			if name == "" || a.Links.Download == "" {
				mu.Lock()
				st.AttachmentsSkipped++
				mu.Unlock()
				return nil
			}
			dst := filepath.Join(dir, name)
			n, err := e.downloadTo(gctx, a.Links.Download, dst)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logf("  Warning: attachment %q of page %s: %v", a.Title, pageID, err)
				st.AttachmentsFailed++
				return nil
			}
			logf("Saving attachment %s to %s (%s)", a.Title, relDir, humanSize(n))
			st.Attachments++
			return nil
		})
	}
	return g.Wait()
}

// downloadTo writes the resource at ref to dst, removing a partial file on
// failure.
func (e *exporter) downloadTo(ctx context.Context, ref, dst string) (int64, error) {
	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := e.client.download(ctx, ref, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return 0, err
	}
	return n, nil
}
