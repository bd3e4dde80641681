// Package server assembles the HTTP API from its components.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/granafin/ofxingest/internal/alert"
	"github.com/granafin/ofxingest/internal/config"
	"github.com/granafin/ofxingest/internal/handlers"
	"github.com/granafin/ofxingest/internal/ingest"
	"github.com/granafin/ofxingest/internal/metrics"
	"github.com/granafin/ofxingest/internal/middleware"
	"github.com/granafin/ofxingest/internal/storage"
)

// Server represents the OFX ingestion API server
type Server struct {
	store storage.Store
	mux   *http.ServeMux
	log   zerolog.Logger
}

// New creates a new server instance
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	s := &Server{
		store: store,
		mux:   http.NewServeMux(),
		log:   log,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	recorder := metrics.NewRecorder(registry)

	tracker := alert.NewTracker(alert.NewMemoryStore(), alert.NewLogNotifier(log), cfg.Alerts.SustainedThreshold)
	service := ingest.NewService(store, recorder, tracker, log)

	s.setupRoutes(service, registry)
	return s, nil
}

func newStore(ctx context.Context, cfg config.Storage) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendSQLite:
		return storage.NewSQLite(cfg.SQLitePath)
	case config.BackendFirestore:
		return storage.NewFirestore(ctx, cfg.FirestoreProject)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(service *ingest.Service, registry *prometheus.Registry) {
	// Health check and metrics (no auth required)
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ingestHandler := handlers.NewIngestHandler(service, s.log)
	s.mux.HandleFunc("POST /api/ofx/import", ingestHandler.Import)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	// Apply middleware
	handler := middleware.RequestLogger(s.log)(s.mux)
	handler = middleware.CORS(handler)
	return handler
}

// Close closes the server resources
func (s *Server) Close() error {
	if closer, ok := s.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
