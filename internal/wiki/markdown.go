package wiki

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts raw Markdown into sanitized HTML for display. It is
// stateless after construction and safe for concurrent use.
type Renderer struct {
	engine      goldmark.Markdown
	htmlPolicy  *bluemonday.Policy
	plainPolicy *bluemonday.Policy
}

// NewRenderer constructs the Markdown renderer. Goldmark runs with the GFM
// extensions (tables, strikethrough, autolinks, task lists) and hard wraps so
// a single newline inside a paragraph becomes a line break. Raw HTML passes
// through the parser untouched and is stripped afterwards by the allow-list
// sanitizer, which keeps standard formatting markup and drops everything else.
func NewRenderer() *Renderer {
	engine := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithUnsafe(),
		),
	)

	return &Renderer{
		engine:      engine,
		htmlPolicy:  bluemonday.UGCPolicy(),
		plainPolicy: bluemonday.StrictPolicy(),
	}
}

// Render parses the Markdown source and sanitizes the resulting HTML.
// Content is stored raw and only ever sanitized here, at display time;
// sanitizing the source before parsing would corrupt valid Markdown such as
// blockquote markers.
func (r *Renderer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.engine.Convert([]byte(markdown), &buf); err != nil {
		return "", eris.Wrap(err, "converting markdown")
	}

	return r.htmlPolicy.Sanitize(buf.String()), nil
}

// NormalizeName canonicalizes a page name: trimmed, spaces replaced with
// hyphens, lower-cased, and stripped of any HTML markup. Names end up in
// links unescaped, so markup is removed at write time.
func (r *Renderer) NormalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ToLower(name)
	return r.plainPolicy.Sanitize(name)
}
