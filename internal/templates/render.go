// Package templates handles HTML template rendering for pages and Datastar
// SSE fragments.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"sync"
)

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs, useful for passing multiple values to nested templates
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
	// action marks a Datastar expression as trusted so data-on:* attributes
	// keep their quotes.
	"action": func(format string, args ...any) template.JS {
		return template.JS(fmt.Sprintf(format, args...))
	},
	// css marks a server-computed style value as trusted.
	"css": func(s string) template.CSS {
		return template.CSS(s)
	},
	// svg embeds rendered map markup.
	"svg": func(b []byte) template.HTML {
		return template.HTML(b)
	},
}

// Renderer manages HTML page and fragment templates.
type Renderer struct {
	templates *template.Template
	dirs      []string
	mu        sync.RWMutex
}

// New parses every *.html file in dirs into one template set, so pages can
// include fragments by name.
func New(dirs ...string) (*Renderer, error) {
	tmpl, err := parse(dirs)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl, dirs: dirs}, nil
}

func parse(dirs []string) (*template.Template, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("templates: no directories")
	}
	tmpl := template.New("").Funcs(funcMap)
	for _, dir := range dirs {
		var err error
		tmpl, err = tmpl.ParseGlob(filepath.Join(dir, "*.html"))
		if err != nil {
			return nil, fmt.Errorf("templates: parse %s: %w", dir, err)
		}
	}
	return tmpl, nil
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
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.templates.ExecuteTemplate(buf, name, data)
}

// MustRender renders a template and panics on error.
// Use only when you're certain the template exists.
func (r *Renderer) MustRender(name string, data any) string {
	s, err := r.Render(name, data)
	if err != nil {
		panic(err)
	}
	return s
}

// Reload reparses the template directories (dev hot-reload).
func (r *Renderer) Reload() error {
	tmpl, err := parse(r.dirs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
