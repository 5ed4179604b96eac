package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-metro/internal/humastar"
)

// Info describes the running service.
type Info struct {
	DataDir   string
	Stations  int
	Lines     int
	MapSource string
	DB        bool
}

type InfoHandler struct {
	info Info
}

func NewInfoHandler(info Info) *InfoHandler {
	return &InfoHandler{info: info}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name      string   `json:"name" doc:"Service name"`
	Version   string   `json:"version" doc:"Service version"`
	DataDir   string   `json:"data_dir" doc:"Data directory path"`
	Stations  int      `json:"stations" doc:"Stations in the dataset"`
	Lines     int      `json:"lines" doc:"Lines in the dataset"`
	MapSource string   `json:"map_source" doc:"Subway map asset"`
	DB        bool     `json:"db" doc:"Whether the analytics database is available"`
	Features  []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body InfoBody }, error) {
	features := []string{"stations", "search", "svg-map", "datastar"}
	if h.info.DB {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:      "plat-metro",
		Version:   "0.1.0",
		DataDir:   h.info.DataDir,
		Stations:  h.info.Stations,
		Lines:     h.info.Lines,
		MapSource: h.info.MapSource,
		DB:        h.info.DB,
		Features:  features,
	}}, nil
}
