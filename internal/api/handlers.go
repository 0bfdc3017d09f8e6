package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"feedbackbot/internal/distribute"
	"feedbackbot/internal/domain"
	"feedbackbot/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const defaultSource = "manual"

type FeedbackRequest struct {
	Text   string `json:"text" validate:"required,max=10000"`
	Source string `json:"source" validate:"omitempty,max=100"`
}

type GenerateResponse struct {
	domain.Report
	Distribution distribute.Summary `json:"distribution"`
}

func (s *server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	defer r.Body.Close()

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	req.Source = strings.TrimSpace(req.Source)
	if err := s.validate.Struct(req); err != nil {
		httpError(w, http.StatusBadRequest, "validation failed: %v", err)
		return
	}
	if req.Source == "" {
		req.Source = defaultSource
	}

	rec, err := s.deps.Ingester.Ingest(r.Context(), req.Text, req.Source)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyText) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		s.internalError(w, r, "submitting feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Store.FetchAll(r.Context())
	if err != nil {
		s.internalError(w, r, "listing feedback", err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid feedback id %q", chi.URLParam(r, "id"))
		return 0, false
	}
	return id, true
}

func (s *server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, found, err := s.deps.Store.FetchByID(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "getting feedback", err)
		return
	}
	if !found {
		httpError(w, http.StatusNotFound, "Feedback not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleDeleteFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	deleted, err := s.deps.Store.DeleteFeedback(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "deleting feedback", err)
		return
	}
	if !deleted {
		httpError(w, http.StatusNotFound, "Feedback not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart upload: %v", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing file field: %v", err)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		httpError(w, http.StatusBadRequest, "File must be a CSV")
		return
	}
	items, err := pipeline.ReadCSV(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "%v", err)
		return
	}

	res, err := s.deps.Ingester.IngestAll(r.Context(), items)
	if err != nil {
		s.internalError(w, r, "storing csv feedback", err)
		return
	}
	if len(res.Failures) > 0 {
		s.deps.Logger.Warn("csv upload partially processed",
			zap.Int("processed", len(res.Records)),
			zap.Int("failed", len(res.Failures)),
			zap.Error(res.Err()))
	}

	count := len(res.Records)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Successfully processed " + strconv.Itoa(count) + " feedback entries",
		"count":   count,
	})
}

func (s *server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	rep, sum, err := s.deps.Reports.Run(r.Context())
	if err != nil {
		s.internalError(w, r, "generating report", err)
		return
	}
	writeJSON(w, http.StatusOK, GenerateResponse{Report: rep, Distribution: sum})
}

func (s *server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	rep, found, err := s.deps.Store.LatestReport(r.Context())
	if err != nil {
		s.internalError(w, r, "getting latest report", err)
		return
	}
	if !found {
		httpError(w, http.StatusNotFound, "No reports found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *server) handleAllReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.deps.Store.AllReports(r.Context())
	if err != nil {
		s.internalError(w, r, "listing reports", err)
		return
	}
	if reports == nil {
		reports = []domain.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}
