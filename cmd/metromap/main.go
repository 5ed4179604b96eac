package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-metro/internal/server"
	"github.com/joeblew999/plat-metro/internal/service"
	"github.com/joeblew999/plat-metro/internal/station"
	"github.com/joeblew999/plat-metro/internal/svgmap"
)

// Options defines all CLI flags and env vars for the metro server.
// Flags: --host, --port, --data-dir, --web-dir, --stations, --map-source, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host        string        `doc:"Host to bind to" default:"0.0.0.0"`
	Port        int           `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir     string        `doc:"Directory for the DuckDB file, empty keeps it in memory" default:""`
	WebDir      string        `doc:"Path to web/ directory" default:"web"`
	Stations    string        `doc:"Station dataset (YAML)" default:"data/stations.yaml"`
	MapSource   string        `doc:"Subway map SVG, URL or path relative to the web directory" default:"static/map/beijing-subway.svg"`
	MaxSessions int           `doc:"Live map sessions kept" default:"256"`
	SessionTTL  time.Duration `doc:"Idle map session lifetime" default:"30m"`
	AssetTTL    time.Duration `doc:"Map asset cache lifetime, 0 caches until restart" default:"0s"`
	Debug       bool          `doc:"Development logging" default:"false"`
}

func newLogger(opts *Options) *zap.SugaredLogger {
	var (
		logger *zap.Logger
		err    error
	)
	if opts.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	return logger.Sugar()
}

func newServer(opts *Options, logger *zap.SugaredLogger) *server.Server {
	srv, err := server.New(server.Config{
		Host:        opts.Host,
		Port:        fmt.Sprintf("%d", opts.Port),
		DataDir:     opts.DataDir,
		WebDir:      opts.WebDir,
		Stations:    opts.Stations,
		MapSource:   opts.MapSource,
		MaxSessions: opts.MaxSessions,
		SessionTTL:  opts.SessionTTL,
		AssetTTL:    opts.AssetTTL,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalw("server setup failed", "error", err)
	}
	return srv
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var httpServer *http.Server
		var logger *zap.SugaredLogger

		hooks.OnStart(func() {
			logger = newLogger(opts)
			defer logger.Sync()
			srv := newServer(opts, logger)
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-metro server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.Stations)
			fmt.Printf("  Map:     %s\n", opts.MapSource)
			fmt.Println()
			fmt.Printf("  Pages:   %s/, %s/go/random\n", baseURL, baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalw("server error", "error", err)
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil && logger != nil {
				logger.Warnw("shutdown", "error", err)
			}
		})
	})

	cli.Root().Use = "metromap"
	cli.Root().Short = "Subway station explorer with an interactive SVG map"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts, zap.NewNop().Sugar())
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// highlight subcommand: render the map with one station highlighted
	highlightCmd := &cobra.Command{
		Use:   "highlight <station>",
		Short: "Write the map SVG with a station highlighted",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			logger := newLogger(opts)
			defer logger.Sync()

			out, _ := cmd.Flags().GetString("output")
			if err := highlight(cmd.Context(), opts, logger, args[0], out); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	highlightCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	cli.Root().AddCommand(highlightCmd)

	cli.Run()
}

func highlight(ctx context.Context, opts *Options, logger *zap.SugaredLogger, name, out string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	catalog, err := station.Load(opts.Stations)
	if err != nil {
		return err
	}
	ctrl := svgmap.New(svgmap.Config{
		Fetcher: service.NewAssetFetcher(opts.WebDir, 0, logger),
		Names:   catalog,
		Logger:  logger,
	})
	if !ctrl.Load(ctx, opts.MapSource) {
		return fmt.Errorf("load %s: %w", opts.MapSource, svgmap.ErrAssetLoad)
	}
	if !ctrl.Highlight(name) {
		return fmt.Errorf("%q: %w", name, svgmap.ErrStationNotFound)
	}
	doc, err := ctrl.Document()
	if err != nil {
		return err
	}
	if out == "" {
		_, err = os.Stdout.Write(doc)
		return err
	}
	return os.WriteFile(out, doc, 0o644)
}
