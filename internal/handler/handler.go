package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prepdash/prepdash/internal/analytics"
	"github.com/prepdash/prepdash/internal/event"
	"github.com/prepdash/prepdash/internal/model"
	"github.com/prepdash/prepdash/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store       *store.Store
	calculator  *analytics.Calculator
	aggregator  *analytics.Aggregator
	comparator  *analytics.Comparator
	trends      *analytics.TrendAnalyzer
	recommender *analytics.Recommender
	events      event.Publisher
}

// New creates a new Handler wired to the analytics components.
func New(s *store.Store, pub event.Publisher) *Handler {
	agg := analytics.NewAggregator(s)
	return &Handler{
		store:       s,
		calculator:  analytics.NewCalculator(s),
		aggregator:  agg,
		comparator:  analytics.NewComparator(s),
		trends:      analytics.NewTrendAnalyzer(agg),
		recommender: analytics.NewRecommender(agg),
		events:      pub,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/calculate/{sessionID}", h.handleCalculate)
	r.Get("/performance/{userID}", h.handlePerformance)
	r.Get("/subject-analysis/{userID}", h.handleSubjectAnalysis)
	r.Get("/progress/{userID}", h.handleProgress)
	r.Post("/compare/{userID}", h.handleCompare)
	r.Get("/trends/{userID}", h.handleTrends)
	r.Get("/recommendations/{userID}", h.handleRecommendations)
	r.Get("/health", h.handleHealth)
	r.Get("/health/detailed", h.handleHealthDetailed)
}

// calculateResponse is the metrics payload plus how long the calculation took.
type calculateResponse struct {
	*model.TestMetrics
	CalculationTimeMs int64 `json:"calculationTimeMs"`
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	metrics, elapsed, err := h.calculator.CalculateAndStore(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.events.Publish(event.MetricsCalculated, metrics); err != nil {
		slog.Error("publish metrics event", "sessionID", sessionID, "error", err)
	}

	writeJSON(w, http.StatusOK, calculateResponse{TestMetrics: metrics, CalculationTimeMs: elapsed})
}

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	history, err := h.aggregator.PerformanceHistory(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleSubjectAnalysis(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	analysis, err := h.aggregator.SubjectAnalysis(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	progress, err := h.aggregator.Progress(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type compareRequest struct {
	TestSessionIDs []string `json:"testSessionIds"`
}

func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &analytics.ValidationError{Msg: "invalid request body: " + err.Error()})
		return
	}

	comparison, err := h.comparator.Compare(r.Context(), userID, req.TestSessionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}

func (h *Handler) handleTrends(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	trends, err := h.trends.Trends(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	recs, err := h.recommender.Recommendations(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	overall, dbStatus := "ok", "ok"
	status := http.StatusOK
	if err := h.store.Ping(); err != nil {
		overall = "degraded"
		dbStatus = "unavailable: " + err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":    overall,
		"database":  dbStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// errorBody is the envelope wrapped around every error response.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{
		Code:      "INTERNAL_ERROR",
		Message:   "internal error",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: middleware.GetReqID(r.Context()),
	}
	status := http.StatusInternalServerError

	var notFound *analytics.NotFoundError
	var validation *analytics.ValidationError
	var storage *analytics.StorageError
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = notFound.Error()
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		body.Code = "VALIDATION_ERROR"
		body.Message = validation.Error()
	case errors.As(err, &storage):
		status = http.StatusInternalServerError
		body.Code = "STORAGE_ERROR"
		body.Message = "storage failure"
		body.Details = storage.Op
		slog.Error("storage failure", "op", storage.Op, "error", storage.Err)
	default:
		slog.Error("unhandled error", "error", err)
	}

	writeJSON(w, status, map[string]errorBody{"error": body})
}
