// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-metro/internal/humastar"
	"github.com/joeblew999/plat-metro/internal/service"
	"github.com/joeblew999/plat-metro/internal/station"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Station *service.StationService
	Map     *service.MapService
}

// Types

type IDInput struct {
	ID int `path:"id" doc:"Station ID" example:"3" minimum:"1"`
}

type ListInput struct {
	Q      string `query:"q" doc:"Case-insensitive substring of the station name"`
	Offset int    `query:"offset" doc:"Items to skip" minimum:"0" default:"0"`
	Limit  int    `query:"limit" doc:"Page size" minimum:"1" maximum:"200" default:"20"`
}

type SuggestInput struct {
	Q string `query:"q" doc:"Case-insensitive substring of the station name" example:"门"`
}

type NeighborsInput struct {
	IDInput
	Line string `query:"line" required:"true" doc:"Line to walk" example:"2号线"`
}

type LineInput struct {
	Name string `path:"name" doc:"Line name" example:"2号线"`
}

type StationOutput struct {
	Body station.Station
}

type StationsOutput struct {
	Body []station.Station
}

type HealthBody struct {
	Status   string `json:"status" doc:"Health status" example:"ok"`
	Version  string `json:"version" doc:"API version" example:"1.0.0"`
	Stations int    `json:"stations" doc:"Stations in the dataset"`
}

// NeighborsBody is a station's position on a line. Its prev/next links are
// emitted as actions only where a neighbor exists.
type NeighborsBody struct {
	Station station.Station  `json:"station" doc:"The station"`
	Line    string           `json:"line" doc:"Line walked"`
	Color   string           `json:"color" doc:"Line color"`
	Prev    *station.Station `json:"prev,omitempty" doc:"Previous station, absent at the line start"`
	Next    *station.Station `json:"next,omitempty" doc:"Next station, absent at the line end"`
}

// Actions implements humastar.Actor.
func (b NeighborsBody) Actions() []humastar.Action {
	var actions []humastar.Action
	q := url.Values{"line": {b.Line}}.Encode()
	if b.Prev != nil {
		actions = append(actions, humastar.Action{
			Rel: "prev", Method: "GET", Title: b.Prev.Name,
			Href: fmt.Sprintf("/api/v1/stations/%d/neighbors?%s", b.Prev.ID, q),
		})
	}
	if b.Next != nil {
		actions = append(actions, humastar.Action{
			Rel: "next", Method: "GET", Title: b.Next.Name,
			Href: fmt.Sprintf("/api/v1/stations/%d/neighbors?%s", b.Next.ID, q),
		})
	}
	actions = append(actions, humastar.Action{
		Rel: "alternate", Method: "GET", Title: "Station page",
		Href: service.StationURL(b.Station.ID, service.ModeLine, b.Line),
	})
	return actions
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterStations registers station lookup routes.
func (h *APIHandler) RegisterStations(api huma.API) {
	huma.Get(api, "/api/v1/stations", h.ListStations, huma.OperationTags("stations"))
	huma.Get(api, "/api/v1/stations/random", h.RandomStation, huma.OperationTags("stations"))
	huma.Get(api, "/api/v1/stations/{id}", h.GetStation, huma.OperationTags("stations"))
	huma.Get(api, "/api/v1/stations/{id}/neighbors", h.GetNeighbors, huma.OperationTags("stations"))
	huma.Get(api, "/api/v1/suggest", h.Suggest, huma.OperationTags("stations"))
}

// RegisterLines registers line routes.
func (h *APIHandler) RegisterLines(api huma.API) {
	huma.Get(api, "/api/v1/lines", h.ListLines, huma.OperationTags("lines"))
	huma.Get(api, "/api/v1/lines/{name}/stations", h.GetLineStations, huma.OperationTags("lines"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body HealthBody }, error) {
	n := 0
	if h.svc != nil && h.svc.Station != nil {
		n = h.svc.Station.Catalog().Len()
	}
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0", Stations: n}}, nil
}

func (h *APIHandler) ListStations(ctx context.Context, input *ListInput) (*struct {
	Body humastar.PageBody[station.Station]
}, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	items, total := h.svc.Station.List(input.Q, input.Offset, input.Limit)
	page := humastar.PageBody[station.Station]{
		Total: total, Offset: input.Offset, Limit: input.Limit, Data: items,
	}
	if input.Q != "" {
		page.Filter = url.Values{"q": {input.Q}}
	}
	return &struct {
		Body humastar.PageBody[station.Station]
	}{Body: page}, nil
}

func (h *APIHandler) GetStation(ctx context.Context, input *IDInput) (*StationOutput, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	s, err := h.svc.Station.Get(input.ID)
	if err != nil {
		return nil, lookupError(err)
	}
	return &StationOutput{Body: s}, nil
}

func (h *APIHandler) RandomStation(ctx context.Context, input *humastar.EmptyInput) (*StationOutput, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	s, err := h.svc.Station.Random()
	if err != nil {
		return nil, lookupError(err)
	}
	return &StationOutput{Body: s}, nil
}

func (h *APIHandler) GetNeighbors(ctx context.Context, input *NeighborsInput) (*struct{ Body NeighborsBody }, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	s, err := h.svc.Station.Get(input.ID)
	if err != nil {
		return nil, lookupError(err)
	}
	n, err := h.svc.Station.Neighbors(input.ID, input.Line)
	if err != nil {
		return nil, lookupError(err)
	}
	return &struct{ Body NeighborsBody }{Body: NeighborsBody{
		Station: s,
		Line:    input.Line,
		Color:   h.svc.Station.LineColor(input.Line),
		Prev:    n.Prev,
		Next:    n.Next,
	}}, nil
}

func (h *APIHandler) Suggest(ctx context.Context, input *SuggestInput) (*StationsOutput, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	out := h.svc.Station.Suggest(input.Q)
	if out == nil {
		out = []station.Station{}
	}
	return &StationsOutput{Body: out}, nil
}

func (h *APIHandler) ListLines(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body []service.LineSummary }, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	return &struct{ Body []service.LineSummary }{Body: h.svc.Station.Lines()}, nil
}

func (h *APIHandler) GetLineStations(ctx context.Context, input *LineInput) (*StationsOutput, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	out, err := h.svc.Station.LineStations(input.Name)
	if err != nil {
		return nil, lookupError(err)
	}
	return &StationsOutput{Body: out}, nil
}

func (h *APIHandler) ready() error {
	if h.svc == nil || h.svc.Station == nil {
		return huma.Error503ServiceUnavailable("station service not available")
	}
	return nil
}

func lookupError(err error) error {
	if errors.Is(err, station.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError("station lookup", err)
}
