// Package svgmap loads a subway map SVG, indexes its station markers and
// labels, and keeps the pan/zoom and highlight state of one map view.
//
// A Controller owns exactly one document at a time. Highlighting never
// mutates the document's own nodes: the emphasis is a separate overlay node
// inserted right after the matched label, so it inherits the label's group
// transform and presentation, and is removed again on clear.
package svgmap

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// Config holds the collaborators of a Controller.
type Config struct {
	Fetcher Fetcher
	Names   NameSet
	Logger  *zap.SugaredLogger
	// Retry is the client action rendered on the load-failure placeholder.
	Retry string
}

// State is a snapshot of a controller's view.
type State struct {
	Loaded      bool    `json:"loaded"`
	Scale       float64 `json:"scale"`
	TranslateX  float64 `json:"translateX"`
	TranslateY  float64 `json:"translateY"`
	Transform   string  `json:"transform"`
	Highlighted string  `json:"highlighted,omitempty"`
	ViewBox     string  `json:"viewBox,omitempty"`
}

type point struct{ x, y float64 }

// Controller is the map view controller. It is safe for concurrent use; all
// state changes are serialized on an internal mutex.
type Controller struct {
	fetcher Fetcher
	names   NameSet
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	generation uint64
	container  *Container
	doc        *etree.Document
	root       *etree.Element
	index      *ElementIndex
	reference  ViewBox
	viewBoxRaw string
	baseStyle  string
	view       ViewTransform
	overlay    *etree.Element
	highlight  string
	dragging   bool
	lastPos    point
}

// New creates a controller with nothing loaded.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{
		fetcher:   cfg.Fetcher,
		names:     cfg.Names,
		logger:    logger,
		container: NewContainer(cfg.Retry),
		view:      Identity(),
	}
}

// Load fetches and parses the map at source and mounts it, replacing any
// previous document and index. It reports false on fetch or parse failure,
// leaving the container on the error placeholder. A load superseded by a
// later Load call returns false and leaves the later result in place.
func (c *Controller) Load(ctx context.Context, source string) bool {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.container.showLoading()
	c.mu.Unlock()

	doc, err := c.fetchDocument(ctx, source)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.Debugw("discarding superseded map load", "source", source)
		return false
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrAssetLoad, source, err)
		c.logger.Warnw("map load failed", "source", source, "error", err)
		c.unmount()
		c.container.showError(err)
		return false
	}

	c.mount(doc)
	c.logger.Infow("map loaded",
		"source", source,
		"viewBox", c.reference.String(),
		"markers", c.index.Markers(),
		"labels", len(c.index.Labels()),
	)
	return true
}

func (c *Controller) fetchDocument(ctx context.Context, source string) (*etree.Document, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	data, err := c.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return parseDocument(data)
}

func parseDocument(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, fmt.Errorf("parse svg: root element is not <svg>")
	}
	return doc, nil
}

func (c *Controller) mount(doc *etree.Document) {
	root := doc.Root()
	c.reference, c.viewBoxRaw = setupViewport(root)
	c.baseStyle = root.SelectAttrValue("style", "")
	injectKeyframes(root)

	c.doc, c.root = doc, root
	c.overlay, c.highlight = nil, ""
	c.view = Identity()
	c.dragging = false
	c.applyTransform()

	c.container.mount(root)
	c.index = buildIndex(root, c.names)
}

func (c *Controller) unmount() {
	c.doc, c.root, c.index = nil, nil, nil
	c.viewBoxRaw, c.baseStyle = "", ""
	c.overlay, c.highlight = nil, ""
	c.view = Identity()
	c.dragging = false
}

// Highlight emphasizes the label whose trimmed text is stationName. Lookup
// tries, in order: the exact index key, a substring match either way against
// indexed label keys, and a scan of every text node. On a miss it returns
// false and changes nothing.
func (c *Controller) Highlight(stationName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := strings.TrimSpace(stationName)
	if c.root == nil || name == "" {
		return false
	}

	label := c.findLabel(name)
	if label == nil {
		c.logger.Warnw("station not highlighted",
			"station", name, "error", ErrStationNotFound)
		return false
	}

	c.removeOverlay()
	c.overlay = NewOverlay(labelOverlaySpec(label))
	c.overlay.Space = label.Space
	label.Parent().InsertChildAt(label.Index()+1, c.overlay)

	c.showFullMap()
	c.highlight = name
	c.logger.Debugw("station highlighted", "station", name)
	return true
}

func (c *Controller) findLabel(name string) *etree.Element {
	if el, ok := c.index.label(name); ok {
		return el
	}

	for _, key := range c.index.Labels() {
		if strings.Contains(key, name) || strings.Contains(name, key) {
			el, _ := c.index.label(key)
			return el
		}
	}

	var found *etree.Element
	walk(c.root, func(el *etree.Element) {
		if found != nil || el == c.overlay || el.Tag != "text" {
			return
		}
		if strings.TrimSpace(textContent(el)) == name {
			found = el
		}
	})
	return found
}

// ClearHighlight removes the overlay, if any.
func (c *Controller) ClearHighlight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearHighlight()
}

func (c *Controller) clearHighlight() {
	c.removeOverlay()
	c.highlight = ""
}

func (c *Controller) removeOverlay() {
	if c.overlay == nil {
		return
	}
	if parent := c.overlay.Parent(); parent != nil {
		parent.RemoveChild(c.overlay)
	}
	c.overlay = nil
}

// showFullMap restores the reference viewport as the document declared it.
func (c *Controller) showFullMap() {
	c.root.CreateAttr("viewBox", c.viewBoxRaw)
}

// ZoomIn raises the scale by one step, up to MaxScale.
func (c *Controller) ZoomIn() {
	c.zoom(ZoomStep)
}

// ZoomOut lowers the scale by one step, down to MinScale.
func (c *Controller) ZoomOut() {
	c.zoom(-ZoomStep)
}

func (c *Controller) zoom(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root == nil {
		return
	}
	if (delta > 0 && c.view.Scale >= MaxScale) || (delta < 0 && c.view.Scale <= MinScale) {
		return
	}
	c.view = c.view.WithScale(delta)
	c.applyTransform()
}

// SetZoomByWheel applies one wheel tick: scrolling down (positive deltaY)
// zooms out, anything else zooms in. The anchor stays at the view center.
func (c *Controller) SetZoomByWheel(deltaY float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root == nil {
		return
	}
	delta := WheelStep
	if deltaY > 0 {
		delta = -WheelStep
	}
	next := c.view.WithScale(delta)
	if next.Scale != c.view.Scale {
		c.view = next
		c.applyTransform()
	}
}

// Pan moves the view by (dx, dy) pixels.
func (c *Controller) Pan(dx, dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pan(dx, dy)
}

func (c *Controller) pan(dx, dy float64) {
	if c.root == nil {
		return
	}
	c.view = c.view.Translate(dx, dy)
	c.applyTransform()
}

// StartDrag begins a pointer or touch drag at (x, y).
func (c *Controller) StartDrag(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root == nil {
		return
	}
	c.dragging = true
	c.lastPos = point{x, y}
	c.applyTransform()
}

// DragTo pans by the pointer movement since the last drag position.
func (c *Controller) DragTo(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dragging {
		return
	}
	dx, dy := x-c.lastPos.x, y-c.lastPos.y
	c.lastPos = point{x, y}
	c.pan(dx, dy)
}

// EndDrag finishes the current drag.
func (c *Controller) EndDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dragging {
		return
	}
	c.dragging = false
	c.applyTransform()
}

// ResetView restores the reference viewport and identity transform and
// clears any highlight.
func (c *Controller) ResetView() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root == nil {
		return
	}
	c.showFullMap()
	c.view = Identity()
	c.applyTransform()
	c.clearHighlight()
}

// applyTransform sets the view properties on the root element's style,
// keeping any other declarations the document had.
func (c *Controller) applyTransform() {
	cursor := "grab"
	if c.dragging {
		cursor = "grabbing"
	}
	c.root.CreateAttr("style", mergeStyle(c.baseStyle, []styleProp{
		{"width", "100%"},
		{"height", "100%"},
		{"cursor", cursor},
		{"transform-origin", "center"},
		{"transform", c.view.CSS()},
	}))
}

// State returns a snapshot of the current view.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Loaded:      c.root != nil,
		Scale:       c.view.Scale,
		TranslateX:  c.view.TranslateX,
		TranslateY:  c.view.TranslateY,
		Transform:   c.view.CSS(),
		Highlighted: c.highlight,
	}
	if c.root != nil {
		s.ViewBox = c.root.SelectAttrValue("viewBox", "")
	}
	return s
}

// Transform returns the current view transform.
func (c *Controller) Transform() ViewTransform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Highlighted returns the highlighted station name, or "".
func (c *Controller) Highlighted() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highlight
}

// IndexedNames returns the station labels found at load, in document order.
func (c *Controller) IndexedNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		return nil
	}
	return c.index.Labels()
}

// ContainerState reports what the display container shows.
func (c *Controller) ContainerState() ContainerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.container.State()
}

// Render returns the container markup: inline SVG or a placeholder.
func (c *Controller) Render() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.container.Render()
}

// Document returns the full serialized document including any overlay.
func (c *Controller) Document() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return nil, fmt.Errorf("%w: no document loaded", ErrAssetLoad)
	}
	var buf bytes.Buffer
	if _, err := c.doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
