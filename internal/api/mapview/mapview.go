// Package mapview contains the Datastar SSE handlers that drive a map
// session: zoom, wheel, pan, drag, reset, highlight, clear and reload, plus
// the session's SVG and event stream.
package mapview

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-metro/internal/humastar"
	"github.com/joeblew999/plat-metro/internal/service"
	"github.com/joeblew999/plat-metro/internal/svgmap"
	"github.com/joeblew999/plat-metro/internal/templates"
)

// ContainerSelector is the page element holding the rendered map.
const ContainerSelector = "#svg-map-container"

// Tag is the OpenAPI tag of the SSE control endpoints.
const Tag = "map"

// SessionActions are the controls every map session exposes.
var SessionActions = []humastar.ActionDef{
	{Rel: "zoom-in", Pattern: "/api/v1/map/%s/zoom-in", Method: "POST", Title: "Zoom in"},
	{Rel: "zoom-out", Pattern: "/api/v1/map/%s/zoom-out", Method: "POST", Title: "Zoom out"},
	{Rel: "reset", Pattern: "/api/v1/map/%s/reset", Method: "POST", Title: "Show full map"},
	{Rel: "wheel", Pattern: "/api/v1/map/%s/wheel", Method: "POST", Title: "Wheel zoom"},
	{Rel: "pan", Pattern: "/api/v1/map/%s/pan", Method: "POST", Title: "Pan"},
	{Rel: "drag", Pattern: "/api/v1/map/%s/drag", Method: "POST", Title: "Drag"},
	{Rel: "highlight", Pattern: "/api/v1/map/%s/highlight", Method: "POST", Title: "Highlight station"},
	{Rel: "clear", Pattern: "/api/v1/map/%s/clear", Method: "POST", Title: "Clear highlight"},
	{Rel: "reload", Pattern: "/api/v1/map/%s/reload", Method: "POST", Title: "Reload map"},
	{Rel: "svg", Pattern: "/api/v1/map/%s/svg", Method: "GET", Title: "Map document"},
	{Rel: "events", Pattern: "/api/v1/map/%s/events", Method: "GET", Title: "Session events"},
	{Rel: "delete", Pattern: "/api/v1/map/%s", Method: "DELETE", Title: "Close session"},
}

// Handler drives map sessions over SSE.
type Handler struct {
	humastar.Handler
	maps   *service.MapService
	logger *zap.SugaredLogger
}

// NewHandler creates a map view handler.
func NewHandler(maps *service.MapService, renderer *templates.Renderer, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		Handler: humastar.Handler{Renderer: renderer},
		maps:    maps,
		logger:  logger,
	}
}

// RegisterRoutes registers session and control routes.
func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/map", h.Open, huma.OperationTags("maps"))
	huma.Get(api, "/api/v1/map/{id}", h.Get, huma.OperationTags("maps"))
	huma.Delete(api, "/api/v1/map/{id}", h.Close, huma.OperationTags("maps"))

	huma.Post(api, "/api/v1/map/{id}/zoom-in", h.ZoomIn, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/map/{id}/zoom-out", h.ZoomOut, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/map/{id}/reset", h.Reset, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/map/{id}/wheel", h.Wheel, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/map/{id}/pan", h.Pan, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/map/{id}/drag", h.Drag, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/map/{id}/highlight", h.Highlight, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/map/{id}/clear", h.Clear, huma.OperationTags(Tag))
	huma.Post(api, "/api/v1/map/{id}/reload", h.Reload, huma.OperationTags(Tag))
	huma.Get(api, "/api/v1/map/{id}/svg", h.SVG, huma.OperationTags(Tag))
	huma.Get(api, "/api/v1/map/{id}/events", h.Events, huma.OperationTags(Tag))
}

// Types

// SessionInput addresses a map session.
type SessionInput struct {
	ID string `path:"id" doc:"Map session ID"`
}

// SignalsInput addresses a map session and carries Datastar signals.
type SignalsInput struct {
	ID      string `path:"id" doc:"Map session ID"`
	RawBody []byte
}

func (i *SignalsInput) signals() (humastar.Signals, error) {
	return (&humastar.SignalsInput{RawBody: i.RawBody}).MustParse()
}

// OpenInput opens a map session.
type OpenInput struct {
	Body struct {
		Station string `json:"station,omitempty" doc:"Station to highlight once the map loads" example:"东直门"`
	}
}

// SessionBody describes a map session.
type SessionBody struct {
	ID        string       `json:"id" doc:"Session ID"`
	Source    string       `json:"source" doc:"Map asset"`
	Station   string       `json:"station,omitempty" doc:"Station restored on reload"`
	Container string       `json:"container" doc:"Display state: loading, mounted or failed"`
	View      svgmap.State `json:"view" doc:"Current view"`
}

// Actions implements humastar.Actor.
func (b SessionBody) Actions() []humastar.Action {
	return humastar.ActionsFor(b.ID, SessionActions)
}

// SessionOutput wraps a session body.
type SessionOutput struct {
	Body SessionBody
}

// SVGOutput is the raw map document.
type SVGOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// REST handlers

// Open creates a map session.
func (h *Handler) Open(ctx context.Context, input *OpenInput) (*SessionOutput, error) {
	sess, err := h.maps.Open(ctx, input.Body.Station)
	if err != nil {
		return nil, huma.Error500InternalServerError("open map session", err)
	}
	return &SessionOutput{Body: describe(sess, h.maps.Source())}, nil
}

// Get describes a map session.
func (h *Handler) Get(ctx context.Context, input *SessionInput) (*SessionOutput, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &SessionOutput{Body: describe(sess, h.maps.Source())}, nil
}

// Close discards a map session.
func (h *Handler) Close(ctx context.Context, input *SessionInput) (*struct{}, error) {
	if !h.maps.Close(input.ID) {
		return nil, huma.Error404NotFound("map session not found")
	}
	return nil, nil
}

// SVG returns the session's container content: the live document, or the
// current placeholder when nothing is mounted.
func (h *Handler) SVG(ctx context.Context, input *SessionInput) (*SVGOutput, error) {
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if sess.Map.ContainerState() != svgmap.ContainerMounted {
		markup, err := sess.Map.Render()
		if err != nil {
			return nil, huma.Error500InternalServerError("render map", err)
		}
		return &SVGOutput{ContentType: "text/html; charset=utf-8", Body: markup}, nil
	}
	doc, err := sess.Map.Document()
	if err != nil {
		return nil, huma.Error500InternalServerError("serialize map", err)
	}
	return &SVGOutput{ContentType: "image/svg+xml", Body: doc}, nil
}

// SSE handlers

// ZoomIn steps the scale up.
func (h *Handler) ZoomIn(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	return h.transform(input.ID, func(m *svgmap.Map) { m.ZoomIn() })
}

// ZoomOut steps the scale down.
func (h *Handler) ZoomOut(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	return h.transform(input.ID, func(m *svgmap.Map) { m.ZoomOut() })
}

// Wheel zooms by the sign of the deltay signal.
func (h *Handler) Wheel(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.signals()
	if err != nil {
		return nil, err
	}
	if !signals.Has("deltay") {
		return nil, huma.Error400BadRequest("deltay is required")
	}
	deltaY := signals.Float("deltay")
	return h.transform(input.ID, func(m *svgmap.Map) { m.SetZoomByWheel(deltaY) })
}

// Pan moves the view by the dx and dy signals.
func (h *Handler) Pan(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.signals()
	if err != nil {
		return nil, err
	}
	dx, dy := signals.Float("dx"), signals.Float("dy")
	return h.transform(input.ID, func(m *svgmap.Map) { m.Pan(dx, dy) })
}

// Drag feeds a pointer gesture: the phase signal is start, move or end and
// x, y carry the pointer position.
func (h *Handler) Drag(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.signals()
	if err != nil {
		return nil, err
	}
	if !signals.Has("x") || !signals.Has("y") {
		return nil, huma.Error400BadRequest("x and y are required")
	}
	x, y := signals.Float("x"), signals.Float("y")
	phase := signals.String("phase")
	var dragging bool
	var step func(*svgmap.Map)
	switch phase {
	case "start":
		dragging = true
		step = func(m *svgmap.Map) { m.StartDrag(x, y) }
	case "move":
		dragging = true
		step = func(m *svgmap.Map) { m.DragTo(x, y) }
	case "end":
		step = func(m *svgmap.Map) {
			m.DragTo(x, y)
			m.EndDrag()
		}
	default:
		return nil, huma.Error400BadRequest(fmt.Sprintf("unknown drag phase %q", phase))
	}

	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	step(sess.Map)
	if phase != "start" {
		h.maps.Notify(sess, service.ActionTransformed)
	}
	signalsOut := viewSignals(sess.Map.State())
	signalsOut["dragging"] = dragging
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(signalsOut)
	}), nil
}

// Reset restores the full-map view and drops the highlight.
func (h *Handler) Reset(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	sess, err := h.maps.Reset(input.ID)
	if err != nil {
		return nil, notFound(err)
	}
	return h.content(sess, "", ""), nil
}

// Highlight highlights the station signal.
func (h *Handler) Highlight(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.signals()
	if err != nil {
		return nil, err
	}
	name := signals.String("station")
	if name == "" {
		return nil, huma.Error400BadRequest("station is required")
	}
	ok, err := h.maps.Highlight(input.ID, name)
	if err != nil {
		return nil, notFound(err)
	}
	sess, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return h.Stream(func(sse humastar.SSE) {
			sse.Error(fmt.Sprintf("地图上未找到站点：%s", name))
		}), nil
	}
	return h.content(sess, "", ""), nil
}

// Clear removes the highlight.
func (h *Handler) Clear(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	sess, err := h.maps.Clear(input.ID)
	if err != nil {
		return nil, notFound(err)
	}
	return h.content(sess, "", ""), nil
}

// Reload refetches the map asset and restores the highlight.
func (h *Handler) Reload(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	sess, loaded, err := h.maps.Reload(ctx, input.ID)
	if err != nil {
		return nil, notFound(err)
	}
	if !loaded {
		return h.content(sess, "地图加载失败", ""), nil
	}
	return h.content(sess, "", "地图已重新加载"), nil
}

// Events streams the session's events until the client goes away or the
// session closes.
func (h *Handler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	if _, err := h.session(input.ID); err != nil {
		return nil, err
	}
	id := input.ID
	bus := h.maps.Bus()
	return h.Stream(func(sse humastar.SSE) {
		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)
		done := ctx.Done()

		for {
			select {
			case <-done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Session != id {
					continue
				}
				sse.Signals(map[string]any{
					"mapevent":    ev.Action,
					"highlighted": ev.Station,
				})
				if ev.Action == service.ActionClosed {
					return
				}
			}
		}
	}), nil
}

// helpers

func (h *Handler) session(id string) (*service.MapSession, error) {
	sess, err := h.maps.Get(id)
	if err != nil {
		return nil, notFound(err)
	}
	return sess, nil
}

// transform applies a view change and patches the transform signals.
func (h *Handler) transform(id string, fn func(*svgmap.Map)) (*huma.StreamResponse, error) {
	sess, err := h.session(id)
	if err != nil {
		return nil, err
	}
	fn(sess.Map)
	h.maps.Notify(sess, service.ActionTransformed)
	signals := viewSignals(sess.Map.State())
	return h.Stream(func(sse humastar.SSE) {
		sse.Signals(signals)
	}), nil
}

// content patches the map container and the view signals, then reports
// success when there is something to report.
func (h *Handler) content(sess *service.MapSession, errMsg, okMsg string) *huma.StreamResponse {
	markup, err := sess.Map.Render()
	signals := viewSignals(sess.Map.State())
	signals["error"] = errMsg
	return h.Stream(func(sse humastar.SSE) {
		if err != nil {
			h.logger.Errorw("render map", "session", sess.ID, "error", err)
			sse.Error("地图渲染失败")
			return
		}
		sse.Patch(string(markup), ContainerSelector)
		sse.Signals(signals)
		if okMsg != "" {
			sse.Success(okMsg)
		}
	})
}

func viewSignals(st svgmap.State) map[string]any {
	return map[string]any{
		"scale":      st.Scale,
		"translatex": st.TranslateX,
		"translatey": st.TranslateY,
		"transform":  st.Transform,
	}
}

func describe(sess *service.MapSession, source string) SessionBody {
	return SessionBody{
		ID:        sess.ID,
		Source:    source,
		Station:   sess.Station(),
		Container: string(sess.Map.ContainerState()),
		View:      sess.Map.State(),
	}
}

func notFound(err error) error {
	if errors.Is(err, service.ErrSessionNotFound) {
		return huma.Error404NotFound("map session not found")
	}
	return huma.Error500InternalServerError("map session", err)
}
