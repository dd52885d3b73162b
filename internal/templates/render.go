// Package templates renders the HTML fragments pushed to the map UI over
// Datastar SSE.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"strings"
)

//go:embed fragments/*.html
var embedded embed.FS

// Fragments is the embedded fragment set.
var Fragments, _ = fs.Sub(embedded, "fragments")

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict builds a map from key-value pairs for nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
	"join": strings.Join,
	"safeURL": safeURL,
}

var linkSchemes = []string{"http://", "https://", "mailto:", "tel:"}

// safeURL passes links with a known scheme through unescaped; html/template
// would otherwise replace tel: links. Anything else becomes "#".
func safeURL(s string) template.URL {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, scheme := range linkSchemes {
		if strings.HasPrefix(lower, scheme) {
			return template.URL(s)
		}
	}
	return "#"
}

// Renderer manages HTML fragment templates.
type Renderer struct {
	templates *template.Template
}

// New parses every *.html file of fsys.
func New(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Default returns a renderer over the embedded fragments.
func Default() (*Renderer, error) {
	return New(Fragments)
}

func parse(fsys fs.FS) (*template.Template, error) {
	return template.New("").Funcs(funcMap).ParseFS(fsys, "*.html")
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	return r.templates.ExecuteTemplate(buf, name, data)
}
