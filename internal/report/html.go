// ABOUTME: Converts report markdown to a standalone HTML page with goldmark
// ABOUTME: Tables need the GFM extension

package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; min-width: 32rem; }
th, td { border-bottom: 1px solid #ddd; padding: 0.35rem 0.75rem; }
td:last-child, th:last-child { text-align: right; font-variant-numeric: tabular-nums; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders markdown produced by Markdown into a full HTML document.
func HTML(md, title, lang string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	if lang == "" {
		lang = "en"
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Lang  string
		Title string
		Body  template.HTML
	}{
		Lang:  lang,
		Title: title,
		Body:  template.HTML(body.String()), //nolint:gosec // generated from escaped report markdown
	})
	if err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return page.Bytes(), nil
}
