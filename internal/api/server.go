// Package api exposes feedback ingestion and reports over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"feedbackbot/internal/distribute"
	"feedbackbot/internal/domain"
	"feedbackbot/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	Name    = "feedbackbot"
	Version = "1.0.0"

	maxJSONBodySize = 1 << 20
	maxUploadSize   = 10 << 20
)

type Store interface {
	FetchAll(ctx context.Context) ([]domain.Record, error)
	FetchByID(ctx context.Context, id int64) (domain.Record, bool, error)
	DeleteFeedback(ctx context.Context, id int64) (bool, error)
	LatestReport(ctx context.Context) (domain.Report, bool, error)
	AllReports(ctx context.Context) ([]domain.Report, error)
	Ping(ctx context.Context) error
}

type Ingester interface {
	Ingest(ctx context.Context, text, source string) (domain.Record, error)
	IngestAll(ctx context.Context, items []pipeline.NewFeedback) (pipeline.BatchResult, error)
}

type ReportJob interface {
	Run(ctx context.Context) (domain.Report, distribute.Summary, error)
}

type Deps struct {
	Store         Store
	Ingester      Ingester
	Reports       ReportJob
	LLMConfigured bool
	Logger        *zap.Logger
}

type server struct {
	deps     Deps
	validate *validator.Validate
	now      func() time.Time
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &server{deps: deps, validate: validator.New(), now: time.Now}

	r := chi.NewRouter()
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/feedback", func(r chi.Router) {
		r.Post("/", s.handleSubmitFeedback)
		r.Get("/", s.handleListFeedback)
		r.Post("/upload-csv", s.handleUploadCSV)
		r.Get("/{id}", s.handleGetFeedback)
		r.Delete("/{id}", s.handleDeleteFeedback)
	})
	r.Route("/report", func(r chi.Router) {
		r.Post("/generate", s.handleGenerateReport)
		r.Get("/latest", s.handleLatestReport)
		r.Get("/all", s.handleAllReports)
	})
	return r
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{"detail": fmt.Sprintf(format, args...)})
}

func (s *server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.deps.Logger.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	httpError(w, http.StatusInternalServerError, "%s: %v", msg, err)
}

func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    Name,
		"version": Version,
		"status":  "running",
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	database := "healthy"
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.deps.Logger.Warn("health check: database unavailable", zap.Error(err))
		database = "unhealthy"
	}
	status := "healthy"
	if database != "healthy" {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"timestamp":      s.now().UTC().Format(time.RFC3339),
		"database":       database,
		"llm_configured": s.deps.LLMConfigured,
	})
}
