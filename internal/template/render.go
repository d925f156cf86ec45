// Package template renders notification templates. Templates use
// {variable} placeholders; values come from the caller-supplied data map.
package template

import (
	"html"
	"regexp"

	"go.uber.org/zap"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Renderer substitutes template placeholders with caller data.
type Renderer struct {
	logger *zap.Logger
}

// NewRenderer creates a template renderer.
func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Render replaces every {name} placeholder with data["name"]. A
// placeholder with no matching key is left as-is in the output and
// logged, so a half-filled template still goes out rather than failing
// the whole notification.
func (r *Renderer) Render(tmpl string, data map[string]string) string {
	return r.render(tmpl, data, false)
}

// RenderHTML is Render with HTML-escaping of substituted values, for
// email HTML bodies where data may contain user-supplied text.
func (r *Renderer) RenderHTML(tmpl string, data map[string]string) string {
	return r.render(tmpl, data, true)
}

func (r *Renderer) render(tmpl string, data map[string]string, escape bool) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := data[name]
		if !ok {
			r.logger.Warn("template variable missing",
				zap.String("variable", name),
			)
			return match
		}
		if escape {
			return html.EscapeString(value)
		}
		return value
	})
}

// Placeholders lists the distinct placeholder names in a template, in
// order of first appearance. Used to validate template uploads.
func Placeholders(tmpl string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
