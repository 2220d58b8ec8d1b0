// Package server exposes the HTTP API: settings documents with
// optimistic-concurrency revisions, plugin and data-source inventories,
// schedule listings and the render window, plus the ambient endpoints
// (lookups, probes, metrics).
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/escape-llc/eink-billboard/internal/clock"
	"github.com/escape-llc/eink-billboard/internal/config"
	"github.com/escape-llc/eink-billboard/internal/datasource"
	"github.com/escape-llc/eink-billboard/internal/logging"
	"github.com/escape-llc/eink-billboard/internal/plugin"
)

// Config configures a Server.
type Config struct {
	// Manager serves the documents. Required.
	Manager *config.Manager

	// Plugins and Sources back the inventory endpoints. Required.
	Plugins *plugin.Registry
	Sources *datasource.Registry

	// Ready gates the readiness probe. Nil reports ready.
	Ready func() bool

	// Gatherer backs /metrics. Nil uses the default gatherer.
	Gatherer prometheus.Gatherer

	// Clock supplies the default start for the render window. Zero value
	// means unscaled system time.
	Clock clock.Clock

	// Logger for request failures. Nil discards.
	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mux  http.Handler
	http *http.Server
}

// New creates the server and builds its routes.
func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.System(nil)
	}
	s := &Server{
		cfg:    cfg,
		logger: logging.Default(cfg.Logger).With("component", "server"),
	}
	s.mux = s.routes()
	return s
}

// Handler returns the root handler, used directly by tests.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/settings/{name}", s.getSettings)
		r.Put("/settings/{name}", s.putSettings)
		r.Get("/schemas/plugin/{id}", s.getPluginSchema)
		r.Get("/schemas/{name}", s.getSchema)

		r.Get("/plugins/list", s.listPlugins)
		r.Get("/plugins/{id}/settings", s.getPluginSettings)
		r.Put("/plugins/{id}/settings", s.putPluginSettings)

		r.Get("/datasources/list", s.listSources)
		r.Get("/datasources/{id}/settings", s.getSourceSettings)
		r.Put("/datasources/{id}/settings", s.putSourceSettings)

		r.Get("/schedule/playlist/list", s.listPlaylists)
		r.Get("/schedule/timer/list", s.listTimerTasks)
		r.Get("/schedule/render", s.renderSchedule)

		r.Get("/lookups/timezone", s.lookupTimezones)
		r.Get("/lookups/locale", s.lookupLocales)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.cfg.Ready != nil && !s.cfg.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	gatherer := s.cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("listening", "addr", addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
