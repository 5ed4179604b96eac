// Package web serves the explorer pages: the landing page with random, line
// and search entry points, and the station page with its interactive map.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-metro/internal/humastar"
	"github.com/joeblew999/plat-metro/internal/service"
	"github.com/joeblew999/plat-metro/internal/station"
	"github.com/joeblew999/plat-metro/internal/templates"
)

// Page messages.
const (
	MsgEmptyQuery      = "请输入站点名称"
	MsgNoMatch         = "未找到相关站点"
	MsgStationNotFound = "站点信息未找到"
	MsgNoInfo          = "暂无相关信息"
)

var messages = map[string]string{
	"empty":    MsgEmptyQuery,
	"notfound": MsgNoMatch,
}

// Handler serves pages and the suggestion stream.
type Handler struct {
	humastar.Handler
	stations *service.StationService
	maps     *service.MapService
	logger   *zap.SugaredLogger
}

// New creates the page handler.
func New(stations *service.StationService, maps *service.MapService, renderer *templates.Renderer, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		Handler:  humastar.Handler{Renderer: renderer},
		stations: stations,
		maps:     maps,
		logger:   logger,
	}
}

// Mount registers the page routes on mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /go/random", h.goRandom)
	mux.HandleFunc("GET /go/line", h.goLine)
	mux.HandleFunc("GET /go/search", h.goSearch)
	mux.HandleFunc("GET /station", h.station)
	mux.HandleFunc("GET /{$}", h.index)
}

// RegisterRoutes registers the Datastar suggestion endpoint.
func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/web/suggest", h.Suggest,
		huma.OperationTags("web"),
		func(o *huma.Operation) { o.Hidden = true },
	)
}

// Badge is a line badge.
type Badge struct {
	Name  string
	Color string
}

// Button is a navigation button; disabled buttons have no target.
type Button struct {
	Label    string
	Href     string
	Disabled bool
}

// IndexPage is the landing page model.
type IndexPage struct {
	Lines   []service.LineSummary
	Message string
}

// MapView is the map panel model.
type MapView struct {
	ID      string
	Markup  []byte
	Signals string
	Actions map[string]string
}

// StationPage is the station page model.
type StationPage struct {
	Title   string
	Error   string
	Station station.Station
	Badges  []Badge
	Origin  string
	History string
	Buttons []Button
	Signals string
	Map     *MapView
}

// SuggestionData is one search suggestion.
type SuggestionData struct {
	Name   string
	Href   string
	Badges []Badge
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "index", IndexPage{
		Lines:   h.stations.Lines(),
		Message: messages[r.URL.Query().Get("msg")],
	})
}

func (h *Handler) goRandom(w http.ResponseWriter, r *http.Request) {
	s, err := h.stations.Random()
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, service.StationURL(s.ID, service.ModeRandom, ""), http.StatusSeeOther)
}

func (h *Handler) goLine(w http.ResponseWriter, r *http.Request) {
	line := r.URL.Query().Get("line")
	stations, err := h.stations.LineStations(line)
	if err != nil || len(stations) == 0 {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, service.StationURL(stations[0].ID, service.ModeLine, line), http.StatusSeeOther)
}

func (h *Handler) goSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Redirect(w, r, "/?msg=empty", http.StatusSeeOther)
		return
	}
	results := h.stations.Search(q)
	if len(results) == 0 {
		http.Redirect(w, r, "/?msg=notfound", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, service.StationURL(results[0].ID, service.ModeSearch, ""), http.StatusSeeOther)
}

func (h *Handler) station(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("id")
	if raw == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		h.renderMissing(w)
		return
	}
	s, err := h.stations.Get(id)
	if err != nil {
		if !errors.Is(err, station.ErrNotFound) {
			h.logger.Errorw("station lookup failed", "id", id, "error", err)
		}
		h.renderMissing(w)
		return
	}

	page := StationPage{
		Title:   s.Name,
		Station: s,
		Badges:  h.badges(s.Lines),
		Origin:  orDefault(s.Origin),
		History: orDefault(s.History),
	}
	nav := h.navigation(s, q.Get("mode"), q.Get("line"))
	page.Buttons = nav.buttons
	page.Signals = encodeSignals(map[string]any{
		"prev":   nav.prev,
		"next":   nav.next,
		"random": "/go/random",
		"touchx": 0,
	})
	page.Map = h.openMap(r.Context(), s.Name)

	h.render(w, http.StatusOK, "station", page)
}

func (h *Handler) renderMissing(w http.ResponseWriter) {
	h.render(w, http.StatusNotFound, "station", StationPage{
		Title:   MsgStationNotFound,
		Error:   MsgStationNotFound,
		Signals: encodeSignals(map[string]any{"prev": "", "next": "", "random": "/go/random", "touchx": 0}),
	})
}

type navigation struct {
	buttons    []Button
	prev, next string
}

// navigation builds the mode-dependent buttons and keyboard targets.
func (h *Handler) navigation(s station.Station, mode, line string) navigation {
	switch mode {
	case service.ModeLine:
		if line == "" && len(s.Lines) > 0 {
			line = s.Lines[0]
		}
		n, err := h.stations.Neighbors(s.ID, line)
		if err != nil {
			h.logger.Debugw("line navigation unavailable", "station", s.Name, "line", line, "error", err)
			break
		}
		var nav navigation
		prev := Button{Label: "上一站", Disabled: n.Prev == nil}
		if n.Prev != nil {
			prev.Href = service.StationURL(n.Prev.ID, service.ModeLine, line)
			nav.prev = prev.Href
		}
		next := Button{Label: "下一站", Disabled: n.Next == nil}
		if n.Next != nil {
			next.Href = service.StationURL(n.Next.ID, service.ModeLine, line)
			nav.next = next.Href
		}
		nav.buttons = []Button{prev, next}
		return nav
	case service.ModeSearch:
		return navigation{buttons: []Button{
			{Label: "返回搜索", Href: "/"},
			{Label: "随机站点", Href: "/go/random"},
		}}
	}
	return navigation{buttons: []Button{
		{Label: "再来一个", Href: "/go/random"},
		{Label: "选择其他", Href: "/"},
	}}
}

// openMap starts a map session highlighting name. A failed session leaves
// the page without a map.
func (h *Handler) openMap(ctx context.Context, name string) *MapView {
	if h.maps == nil {
		return nil
	}
	sess, err := h.maps.Open(ctx, name)
	if err != nil {
		h.logger.Errorw("open map session", "station", name, "error", err)
		return nil
	}
	markup, err := sess.Map.Render()
	if err != nil {
		h.logger.Errorw("render map", "session", sess.ID, "error", err)
		return nil
	}
	st := sess.Map.State()
	actions := map[string]string{}
	for _, a := range []string{"zoom-in", "zoom-out", "reset", "wheel", "drag", "pan", "highlight", "clear", "reload", "events"} {
		actions[a] = service.SessionPath(sess.ID, a)
	}
	// Closed when the page goes away so navigation does not leave sessions behind.
	actions["close"] = service.SessionPath(sess.ID, "")
	return &MapView{
		ID:     sess.ID,
		Markup: markup,
		Signals: encodeSignals(map[string]any{
			"session":    sess.ID,
			"scale":      st.Scale,
			"translatex": st.TranslateX,
			"translatey": st.TranslateY,
			"transform":  st.Transform,
			"deltay":     0,
			"x":          0,
			"y":          0,
			"phase":      "",
			"dragging":   false,
			"station":    name,
			"error":      "",
			"success":    "",
		}),
		Actions: actions,
	}
}

// SuggestInput carries the search box signal.
type SuggestInput struct {
	RawBody []byte
}

// Suggest streams search suggestions for the q signal into #suggestions.
func (h *Handler) Suggest(ctx context.Context, input *SuggestInput) (*huma.StreamResponse, error) {
	signals, err := (&humastar.SignalsInput{RawBody: input.RawBody}).MustParse()
	if err != nil {
		return nil, err
	}
	q := strings.TrimSpace(signals.String("q"))

	return h.Stream(func(sse humastar.SSE) {
		if q == "" {
			sse.Patch("", "#suggestions")
			return
		}
		var items []any
		for _, s := range h.stations.Suggest(q) {
			items = append(items, SuggestionData{
				Name:   s.Name,
				Href:   service.StationURL(s.ID, service.ModeSearch, ""),
				Badges: h.badges(s.Lines),
			})
		}
		sse.Patch(h.RenderList("suggestion", items, MsgNoMatch, ""), "#suggestions")
	}), nil
}

func (h *Handler) badges(lines []string) []Badge {
	out := make([]Badge, len(lines))
	for i, l := range lines {
		out[i] = Badge{Name: l, Color: h.stations.LineColor(l)}
	}
	return out
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	html, err := h.Renderer.Render(name, data)
	if err != nil {
		h.logger.Errorw("render page", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(html))
}

func orDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return MsgNoInfo
	}
	return s
}

func encodeSignals(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

