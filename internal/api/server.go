// Package api serves K_PV analyses, dataset summaries and charts over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/pvclearsky/internal/chart"
	"github.com/lox/pvclearsky/internal/dataset"
	"github.com/lox/pvclearsky/internal/kpv"
	"github.com/lox/pvclearsky/internal/models"
	"github.com/lox/pvclearsky/internal/store"
)

// Narrator writes a plain-language summary of a report.
type Narrator interface {
	Summarize(ctx context.Context, stationID string, res *models.WindowResult, reports []models.DayReport) (string, error)
}

type Server struct {
	ds       *dataset.Dataset
	calc     *kpv.Calculator
	port     string
	store    *store.Store
	narrator Narrator
	charts   *chart.Cache
	renderMu sync.Mutex // Prevents concurrent rendering of the same chart
}

type Option func(*Server)

// WithStore exposes migration state and import runs.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithNarrator enables ?narrative=1 on report endpoints.
func WithNarrator(n Narrator) Option {
	return func(s *Server) { s.narrator = n }
}

// WithChartCache replaces the default one-hour chart cache.
func WithChartCache(c *chart.Cache) Option {
	return func(s *Server) { s.charts = c }
}

func NewServer(ds *dataset.Dataset, calc *kpv.Calculator, port string, opts ...Option) *Server {
	s := &Server{
		ds:     ds,
		calc:   calc,
		port:   port,
		charts: chart.NewCache(time.Hour),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.narrator == nil {
		slog.Info("api: narrative summaries disabled")
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", s.route("health", s.handleHealth))
	mux.Handle("GET /api/info", s.route("info", s.handleInfo))
	mux.Handle("GET /api/stations", s.route("stations", s.handleStations))
	mux.Handle("GET /api/stations/{station}", s.route("station", s.handleStation))
	mux.Handle("GET /api/stations/{station}/records", s.route("records", s.handleRecords))
	mux.Handle("GET /api/intersection", s.route("intersection", s.handleIntersection))
	mux.Handle("GET /api/kpv", s.route("kpv", s.handleKPV))
	mux.Handle("GET /api/import-runs", s.route("import_runs", s.handleImportRuns))
	mux.Handle("GET /chart/kpv.png", s.route("chart_kpv", s.handleChart(chartKPV)))
	mux.Handle("GET /chart/clearsky.png", s.route("chart_clearsky", s.handleChart(chartClearSky)))
	mux.Handle("GET /chart/card.png", s.route("chart_card", s.handleChart(chartCard)))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("api: listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
