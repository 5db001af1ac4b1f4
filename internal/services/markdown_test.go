package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownRender(t *testing.T) {
	t.Parallel()

	svc := NewMarkdownService()

	html, err := svc.Render("# Title\n\nSome **bold** text.")
	require.NoError(t, err)
	assert.Contains(t, html, "Title")
	assert.Contains(t, html, "<strong>bold</strong>")
}

func TestMarkdownRenderStripsScripts(t *testing.T) {
	t.Parallel()

	svc := NewMarkdownService()

	html, err := svc.Render("hello <script>alert(1)</script> world")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "hello")
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"Already-Slugged", "already-slugged"},
		{"  Spaces  Everywhere  ", "spaces-everywhere"},
		{"Symbols!@#$", "symbols"},
		{"under_scores", "under-scores"},
		{"---", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "input %q", tt.in)
	}
}
