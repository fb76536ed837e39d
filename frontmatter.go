package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"go.yaml.in/yaml/v3"
)

// frontMatter is the optional YAML header written above a page's Markdown.
type frontMatter struct {
	Title        string   `yaml:"title"`
	ConfluenceID string   `yaml:"confluence_id"`
	Ancestors    []string `yaml:"ancestors,omitempty"`
	Version      int      `yaml:"version,omitempty"`
	Updated      string   `yaml:"updated,omitempty"`
}

func newFrontMatter(p manifestPage) frontMatter {
	fm := frontMatter{
		Title:        p.Title,
		ConfluenceID: p.ID,
		Ancestors:    p.Ancestors,
		Version:      p.Version,
	}
	if p.UpdatedAt != "" {
		t, err := dateparse.ParseAny(p.UpdatedAt)
		if err != nil {
			logf("  Warning: page %s: unparseable update time %q", p.ID, p.UpdatedAt)
		} else {
			fm.Updated = t.UTC().Format(time.RFC3339)
		}
	}
	return fm
}

// withFrontMatter returns md prefixed by fm as a "---" delimited YAML block.
func withFrontMatter(md []byte, fm frontMatter) ([]byte, error) {
	header, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n")
	if len(md) > 0 {
		buf.WriteByte('\n')
		buf.Write(md)
	}
	return buf.Bytes(), nil
}
