package svgmap

import (
	"bytes"
	"html/template"

	"github.com/beevik/etree"
)

// ContainerState is what the display container currently shows.
type ContainerState string

const (
	ContainerLoading ContainerState = "loading"
	ContainerMounted ContainerState = "mounted"
	ContainerFailed  ContainerState = "failed"
)

var placeholders = template.Must(template.New("").Parse(`
{{define "loading"}}<div class="map-placeholder map-loading"><div class="map-spinner"></div><p>地图加载中...</p></div>{{end}}
{{define "failed"}}<div class="map-placeholder map-error"><p class="map-error-icon">🗺️</p><p>地图加载失败</p>{{if .Retry}}<button class="map-retry" data-on:click="{{.Retry}}">重试</button>{{end}}</div>{{end}}
`))

// Container is the single display element the controller renders into.
// After a load it fully owns its content.
type Container struct {
	// Retry is the client action bound to the error placeholder's retry
	// button; empty renders no button.
	Retry string

	state ContainerState
	root  *etree.Element
	err   error
}

// NewContainer returns a container showing the loading placeholder.
func NewContainer(retry string) *Container {
	return &Container{Retry: retry, state: ContainerLoading}
}

// State returns the container state.
func (c *Container) State() ContainerState {
	return c.state
}

// Err returns the error shown by the failed placeholder, if any.
func (c *Container) Err() error {
	return c.err
}

func (c *Container) showLoading() {
	c.state, c.root, c.err = ContainerLoading, nil, nil
}

func (c *Container) mount(root *etree.Element) {
	c.state, c.root, c.err = ContainerMounted, root, nil
}

func (c *Container) showError(err error) {
	c.state, c.root, c.err = ContainerFailed, nil, err
}

// Render returns the container's inner markup: the inline SVG when mounted,
// otherwise the matching placeholder.
func (c *Container) Render() ([]byte, error) {
	if c.state == ContainerMounted {
		inline := etree.NewDocument()
		inline.SetRoot(c.root.Copy())
		return inline.WriteToBytes()
	}

	var buf bytes.Buffer
	data := struct{ Retry template.JS }{template.JS(c.Retry)}
	if err := placeholders.ExecuteTemplate(&buf, string(c.state), data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
