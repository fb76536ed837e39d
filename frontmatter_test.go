package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func TestNewFrontMatter(t *testing.T) {
	fm := newFrontMatter(manifestPage{
		ID:        "123",
		Title:     "Child Page",
		Ancestors: []string{"Space Home", "Team"},
		Version:   4,
		UpdatedAt: "2024-05-01T10:00:00.000+02:00",
	})
	assert.Equal(t, frontMatter{
		Title:        "Child Page",
		ConfluenceID: "123",
		Ancestors:    []string{"Space Home", "Team"},
		Version:      4,
		Updated:      "2024-05-01T08:00:00Z",
	}, fm)
}

func TestNewFrontMatter_BadDate(t *testing.T) {
	fm := newFrontMatter(manifestPage{ID: "1", Title: "x", UpdatedAt: "sometime last week"})
	assert.Empty(t, fm.Updated)
	assert.Equal(t, "1", fm.ConfluenceID)
}

func TestWithFrontMatter(t *testing.T) {
	fm := frontMatter{Title: "Q1: Plans", ConfluenceID: "42", Ancestors: []string{"Home"}, Version: 2}
	out, err := withFrontMatter([]byte("# Plans\n"), fm)
	require.NoError(t, err)

	s := string(out)
	require.True(t, strings.HasPrefix(s, "---\n"), s)
	head, body, ok := strings.Cut(strings.TrimPrefix(s, "---\n"), "---\n")
	require.True(t, ok, s)
	assert.Equal(t, "\n# Plans\n", body)

	var back frontMatter
	require.NoError(t, yaml.Unmarshal([]byte(head), &back))
	assert.Equal(t, fm, back)
	assert.NotContains(t, head, "updated:", "empty fields are omitted")
}

func TestWithFrontMatter_EmptyBody(t *testing.T) {
	out, err := withFrontMatter(nil, frontMatter{Title: "Empty", ConfluenceID: "7"})
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: Empty\nconfluence_id: \"7\"\n---\n", string(out))
}
