package svgmap

import "context"

// Map binds a controller to the fixed map asset a page shows. It is the
// surface the page navigation calls into.
type Map struct {
	*Controller
	source string
}

// NewMap returns a Map that loads source on initialization.
func NewMap(ctrl *Controller, source string) *Map {
	return &Map{Controller: ctrl, source: source}
}

// Source returns the asset location.
func (m *Map) Source() string {
	return m.source
}

// InitializeSVGMap loads the map asset into the controller.
func (m *Map) InitializeSVGMap(ctx context.Context) bool {
	return m.Load(ctx, m.source)
}

// HighlightStationOnMap highlights name after the page routes to a station.
func (m *Map) HighlightStationOnMap(name string) bool {
	return m.Highlight(name)
}
