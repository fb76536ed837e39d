package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManifest(t *testing.T) *manifest {
	t.Helper()
	m, err := openManifest(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManifest_PutGet(t *testing.T) {
	ctx := context.Background()
	m := openTestManifest(t)

	want := manifestPage{
		ID:        "3",
		SpaceKey:  "DOC",
		Title:     "Child Page",
		ParentID:  "2",
		Ancestors: []string{"Space Home", "Team"},
		Path:      "DOC/Space Home/Team/Child Page.html",
		Version:   7,
		UpdatedAt: "2024-05-03T10:00:00.000Z",
	}
	require.NoError(t, m.Put(ctx, want))

	got, err := m.Get(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	byPath, err := m.ByPath(ctx, filepath.FromSlash("DOC/Space Home/Team/Child Page.html"))
	require.NoError(t, err)
	assert.Equal(t, want, byPath)

	p, err := m.Ancestry(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, pagePath{Title: "Child Page", Ancestors: []string{"Space Home", "Team"}}, p)
}

func TestManifest_HomepageHasNoAncestors(t *testing.T) {
	ctx := context.Background()
	m := openTestManifest(t)

	require.NoError(t, m.Put(ctx, manifestPage{ID: "1", SpaceKey: "DOC", Title: "Space Home", Path: "DOC/Space Home.html"}))
	got, err := m.Get(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, got.Ancestors)
	assert.Empty(t, got.ParentID)
}

func TestManifest_Replace(t *testing.T) {
	ctx := context.Background()
	m := openTestManifest(t)

	require.NoError(t, m.Put(ctx, manifestPage{ID: "1", SpaceKey: "DOC", Title: "Old", Path: "DOC/Old.html", Version: 1}))
	require.NoError(t, m.Put(ctx, manifestPage{ID: "1", SpaceKey: "DOC", Title: "New", Path: "DOC/New.html", Version: 2}))

	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, 2, got.Version)
}

func TestManifest_NotFound(t *testing.T) {
	ctx := context.Background()
	m := openTestManifest(t)

	_, err := m.Get(ctx, "missing")
	assert.True(t, errors.Is(err, errPageNotFound), "err = %v", err)

	_, err = m.ByPath(ctx, "DOC/missing.html")
	assert.ErrorIs(t, err, errPageNotFound)

	_, err = m.Ancestry(ctx, "missing")
	assert.ErrorIs(t, err, errPageNotFound)
}

func TestManifest_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	m, err := openManifest(dir)
	require.NoError(t, err)
	require.NoError(t, m.Put(ctx, manifestPage{ID: "1", SpaceKey: "DOC", Title: "Home", Path: "DOC/Home.html"}))
	require.NoError(t, m.Close())

	m, err = openManifest(dir)
	require.NoError(t, err)
	defer m.Close()
	n, err := m.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, filepath.Join(dir, manifestFile))
}
