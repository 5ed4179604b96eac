package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-metro/internal/api"
	"github.com/joeblew999/plat-metro/internal/api/mapview"
	"github.com/joeblew999/plat-metro/internal/db"
	"github.com/joeblew999/plat-metro/internal/humastar"
	"github.com/joeblew999/plat-metro/internal/service"
	"github.com/joeblew999/plat-metro/internal/station"
	"github.com/joeblew999/plat-metro/internal/templates"
	"github.com/joeblew999/plat-metro/internal/web"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string // DuckDB directory; empty keeps the mirror in memory
	WebDir  string // Path to web/ directory for static files and templates

	Stations    string        // station dataset (YAML)
	MapSource   string        // map asset, URL or path relative to WebDir
	MaxSessions int           // live map sessions kept
	SessionTTL  time.Duration // idle map session lifetime
	AssetTTL    time.Duration // fetched map asset cache lifetime

	Logger *zap.SugaredLogger
}

// Server is the metro explorer HTTP server.
type Server struct {
	config   Config
	logger   *zap.SugaredLogger
	mux      *http.ServeMux
	humaAPI  huma.API
	links    *humastar.Links
	db       *sql.DB
	catalog  *station.Catalog
	services *api.Services
	renderer *templates.Renderer
}

// New creates a server: it loads the dataset, mirrors it into DuckDB and
// registers every route.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	catalog, err := station.Load(cfg.Stations)
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}

	mux := http.NewServeMux()
	links := humastar.NewLinks(mapview.Tag, "web")

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-metro API", "1.0.0")
	humaConfig.Info.Description = "Subway station explorer: station lookup, line navigation and server-side SVG map sessions."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, links.Transformer())

	humaAPI := humago.New(mux, humaConfig)

	fetcher := service.NewAssetFetcher(cfg.WebDir, cfg.AssetTTL, logger.Named("assets"))
	bus := service.NewEventBus()
	services := &api.Services{
		Station: service.NewStationService(catalog),
		Map: service.NewMapService(service.MapConfig{
			Source:      cfg.MapSource,
			MaxSessions: cfg.MaxSessions,
			TTL:         cfg.SessionTTL,
		}, fetcher, catalog, bus, logger.Named("map")),
	}

	// Page and fragment templates
	var renderer *templates.Renderer
	if cfg.WebDir != "" {
		tmplDir := filepath.Join(cfg.WebDir, "templates")
		r, err := templates.New(filepath.Join(tmplDir, "fragments"), filepath.Join(tmplDir, "pages"))
		if err != nil {
			logger.Warnw("templates unavailable, pages disabled", "dir", tmplDir, "error", err)
		} else {
			renderer = r
			logger.Infow("loaded templates", "dir", tmplDir)
		}
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		mux:      mux,
		humaAPI:  humaAPI,
		links:    links,
		catalog:  catalog,
		services: services,
		renderer: renderer,
	}

	// DuckDB mirror for ad-hoc SQL
	conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "metro"})
	if err != nil {
		logger.Warnw("duckdb unavailable", "error", err)
	} else if err := db.Mirror(context.Background(), conn, catalog); err != nil {
		logger.Warnw("mirror stations", "error", err)
	} else {
		s.db = conn
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Maps returns the map session service.
func (s *Server) Maps() *service.MapService {
	return s.services.Map
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(api.Info{
		DataDir:   s.config.DataDir,
		Stations:  s.catalog.Len(),
		Lines:     len(s.catalog.Lines()),
		MapSource: s.config.MapSource,
		DB:        s.db != nil,
	}).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)

	// Map session control (Datastar SSE)
	mapview.NewHandler(s.services.Map, s.renderer, s.logger.Named("mapview")).RegisterRoutes(s.humaAPI)

	// Static files and pages
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	if s.renderer != nil {
		pages := web.New(s.services.Station, s.services.Map, s.renderer, s.logger.Named("web"))
		pages.RegisterRoutes(s.humaAPI)
		pages.Mount(s.mux)
	} else {
		s.mux.HandleFunc("GET /{$}", s.handleRoot)
	}

	// Hypermedia links need every route in the OpenAPI document.
	s.links.Generate(s.humaAPI)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service":  "plat-metro",
		"status":   "running",
		"stations": s.catalog.Len(),
	})
}
