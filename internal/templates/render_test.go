package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemplate(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRenderAcrossDirs(t *testing.T) {
	fragments, pages := t.TempDir(), t.TempDir()
	writeTemplate(t, fragments, "button.html",
		`{{define "zoom"}}<button data-on:click="{{action "@post('%s')" .}}">+</button>{{end}}`)
	writeTemplate(t, pages, "page.html",
		`{{define "page"}}<main>{{template "zoom" .Path}}{{with dict "N" .Name}}<h1>{{.N}}</h1>{{end}}</main>{{end}}`)

	r, err := New(fragments, pages)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.Render("page", map[string]string{"Path": "/api/v1/map/abc/zoom-in", "Name": "<东直门>"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// The action survives as script; quotes are only entity-encoded.
	if !strings.Contains(got, `@post(&#39;/api/v1/map/abc/zoom-in&#39;)`) {
		t.Errorf("action escaped as data: %s", got)
	}
	if !strings.Contains(got, "<h1>&lt;东直门&gt;</h1>") {
		t.Errorf("text not escaped: %s", got)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.html", `{{define "a"}}one{{end}}`)
	r, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	writeTemplate(t, dir, "a.html", `{{define "a"}}two{{end}}`)
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := r.MustRender("a", nil); got != "two" {
		t.Errorf("after reload got %q", got)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("no directories accepted")
	}
	if _, err := New(t.TempDir()); err == nil {
		t.Error("directory without templates accepted")
	}
}
