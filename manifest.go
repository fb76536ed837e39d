// Export manifest: one SQLite row per fetched page.
// The convert phase reads it to resolve page links without the API and to
// build front matter.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const manifestFile = "manifest.db"

// manifestPage is one exported page. Path is the page's HTML file relative to
// the output directory, slash separated.
type manifestPage struct {
	ID        string
	SpaceKey  string
	Title     string
	ParentID  string
	Ancestors []string
	Path      string
	Version   int
	UpdatedAt string
}

// manifest stores exported pages in <out_dir>/manifest.db.
type manifest struct {
	db *sql.DB
}

// openManifest opens or creates the manifest database in dir.
func openManifest(dir string) (*manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, manifestFile)+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	m := &manifest{db: db}
	if err := m.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating manifest schema: %w", err)
	}
	return m, nil
}

func (m *manifest) createSchema() error {
	_, err := m.db.Exec(`CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		space_key TEXT NOT NULL,
		title TEXT NOT NULL,
		parent_id TEXT,
		ancestors TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		version INTEGER,
		updated_at TEXT
	)`)
	return err
}

// Close releases the database connection.
func (m *manifest) Close() error {
	return m.db.Close()
}

// Put inserts or replaces p.
func (m *manifest) Put(ctx context.Context, p manifestPage) error {
	ancestors, err := json.Marshal(nonNil(p.Ancestors))
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pages (id, space_key, title, parent_id, ancestors, path, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SpaceKey, p.Title, p.ParentID, string(ancestors), p.Path, p.Version, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("recording page %s: %w", p.ID, err)
	}
	return nil
}

const pageColumns = `id, space_key, title, parent_id, ancestors, path, version, updated_at`

// Get returns the page with the given ID, or errPageNotFound.
func (m *manifest) Get(ctx context.Context, id string) (manifestPage, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)
	return scanPage(row, id)
}

// ByPath returns the page recorded at path (relative to the output
// directory), or errPageNotFound.
func (m *manifest) ByPath(ctx context.Context, path string) (manifestPage, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE path = ?`, filepath.ToSlash(path))
	return scanPage(row, path)
}

// Ancestry implements pageLookup from the recorded export.
func (m *manifest) Ancestry(ctx context.Context, pageID string) (pagePath, error) {
	p, err := m.Get(ctx, pageID)
	if err != nil {
		return pagePath{}, err
	}
	return pagePath{Title: p.Title, Ancestors: p.Ancestors}, nil
}

// Len returns the number of recorded pages.
func (m *manifest) Len(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `SELECT count(*) FROM pages`).Scan(&n)
	return n, err
}

func scanPage(row *sql.Row, key string) (manifestPage, error) {
	var (
		p         manifestPage
		parent    sql.NullString
		ancestors string
		version   sql.NullInt64
		updated   sql.NullString
	)
	err := row.Scan(&p.ID, &p.SpaceKey, &p.Title, &parent, &ancestors, &p.Path, &version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return manifestPage{}, fmt.Errorf("manifest %s: %w", key, errPageNotFound)
	}
	if err != nil {
		return manifestPage{}, fmt.Errorf("manifest %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(ancestors), &p.Ancestors); err != nil {
		return manifestPage{}, fmt.Errorf("manifest %s: ancestors: %w", key, err)
	}
	if len(p.Ancestors) == 0 {
		p.Ancestors = nil
	}
	p.ParentID = parent.String
	p.Version = int(version.Int64)
	p.UpdatedAt = updated.String
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
