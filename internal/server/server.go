// internal/server/server.go
package server

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/logger"
	"ihydro/internal/models"
)

// Readings is the read side of the reading store.
type Readings interface {
	Latest(ctx context.Context) (models.Reading, error)
	History(ctx context.Context, limit int) ([]models.Reading, error)
	SummaryBetween(ctx context.Context, rangeName string, from, to time.Time) (models.Summary, error)
}

type LatestCache interface {
	Get(ctx context.Context) (models.Reading, bool, error)
}

type Ingestor interface {
	Accept(ctx context.Context, ingress string, r models.Reading) (models.Reading, error)
}

type Assistant interface {
	Reply(ctx context.Context, sessionID, message string) (models.ChatResponse, error)
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Option func(*Server)

func WithCache(c LatestCache) Option { return func(s *Server) { s.cache = c } }

func WithReadinessCheck(name string, c Check) Option {
	return func(s *Server) { s.checks[name] = c }
}

// Server is the sensor API consumed by the monitor and the dashboard.
type Server struct {
	config    *Config
	readings  Readings
	cache     LatestCache
	ingest    Ingestor
	assistant Assistant
	hub       *Hub
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
	checks    map[string]Check
	now       func() time.Time
}

func New(cfg *Config, readings Readings, ingest Ingestor, assistant Assistant, hub *Hub, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		config:    cfg,
		readings:  readings,
		ingest:    ingest,
		assistant: assistant,
		hub:       hub,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log.WithFields(map[string]interface{}{"component": "api"}),
		checks:    make(map[string]Check),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with CORS and access logging applied.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sensors", s.handleSensors).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/summary/{range}", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return handlers.CustomLoggingHandler(io.Discard, handlers.RecoveryHandler()(cors(r)), s.logRequest)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	fields := map[string]interface{}{
		"method": p.Request.Method,
		"path":   p.URL.Path,
		"status": p.StatusCode,
		"bytes":  p.Size,
	}
	if p.StatusCode >= http.StatusInternalServerError {
		s.logger.Warn("http request", fields)
		return
	}
	s.logger.Debug("http request", fields)
}
