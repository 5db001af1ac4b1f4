package services

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// MarkdownService handles markdown parsing and rendering for page content.
type MarkdownService struct {
	md        goldmark.Markdown
	sanitizer *bluemonday.Policy
}

// NewMarkdownService creates a new markdown service with secure defaults.
func NewMarkdownService() *MarkdownService {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
			html.WithUnsafe(), // sanitized separately with bluemonday
		),
	)

	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("details", "summary", "mark", "kbd", "sub", "sup")
	sanitizer.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6", "a")
	sanitizer.AllowAttrs("class").Matching(regexp.MustCompile(`^language-[a-zA-Z0-9_-]+$`)).OnElements("code")
	sanitizer.AllowAttrs("href").OnElements("a")
	sanitizer.AllowRelativeURLs(true)

	return &MarkdownService{
		md:        md,
		sanitizer: sanitizer,
	}
}

// Render converts markdown to sanitized HTML.
func (s *MarkdownService) Render(markdown string) (string, error) {
	var buf bytes.Buffer

	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}

	return string(s.sanitizer.SanitizeBytes(buf.Bytes())), nil
}

// Slugify converts a page title to a URL-safe slug.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	slug = regexp.MustCompile(`[^a-z0-9-]`).ReplaceAllString(slug, "")
	slug = regexp.MustCompile(`-+`).ReplaceAllString(slug, "-")

	return strings.Trim(slug, "-")
}
