package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/backtest"
	"github.com/quantleap/quantd/internal/modules/risk"
)

// Handler exposes the job orchestrator over HTTP. Submissions return 202
// with a job id; results are fetched separately once the job completes.
type Handler struct {
	manager *Manager
	log     zerolog.Logger
}

// NewHandler creates a jobs handler.
func NewHandler(manager *Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "jobs").Logger(),
	}
}

// RegisterRoutes registers all job orchestration routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/backtest", h.HandleSubmitBacktest)
		r.Post("/compare", h.HandleSubmitCompare)
		r.Post("/monte-carlo", h.HandleSubmitMonteCarlo)
		r.Post("/stress-test", h.HandleSubmitStressTest)
		r.Get("/", h.HandleList)
		r.Get("/{jobID}", h.HandleStatus)
		r.Get("/{jobID}/result", h.HandleResult)
		r.Get("/{jobID}/stream", h.HandleStream)
		r.Delete("/{jobID}", h.HandleCancel)
	})
}

// HandleSubmitBacktest handles POST /api/jobs/backtest
func (h *Handler) HandleSubmitBacktest(w http.ResponseWriter, r *http.Request) {
	var cfg backtest.BacktestConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.submit(w, KindBacktest, cfg)
}

// HandleSubmitCompare handles POST /api/jobs/compare
func (h *Handler) HandleSubmitCompare(w http.ResponseWriter, r *http.Request) {
	var req backtest.CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.submit(w, KindCompare, req)
}

// HandleSubmitMonteCarlo handles POST /api/jobs/monte-carlo
func (h *Handler) HandleSubmitMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var cfg risk.MonteCarloConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.submit(w, KindMonteCarlo, cfg)
}

// HandleSubmitStressTest handles POST /api/jobs/stress-test.
// Scenarios are fixed-shape records; unknown fields are rejected here at
// the boundary rather than silently dropped.
func (h *Handler) HandleSubmitStressTest(w http.ResponseWriter, r *http.Request) {
	var input StressInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.submit(w, KindStressTest, input)
}

// submit queues the payload and answers 202 with the job id.
func (h *Handler) submit(w http.ResponseWriter, kind JobKind, payload any) {
	id, err := h.manager.Submit(kind, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]string{"job_id": id},
		"metadata": map[string]interface{}{
			"kind":      string(kind),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleList handles GET /api/jobs?state=&limit=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	state := JobState(r.URL.Query().Get("state"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	listed := h.manager.List(state, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": listed,
		"metadata": map[string]interface{}{
			"count":     len(listed),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleStatus handles GET /api/jobs/{jobID}
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": job})
}

// HandleResult handles GET /api/jobs/{jobID}/result
func (h *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.Result(chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleCancel handles DELETE /api/jobs/{jobID}. Cancellation is
// idempotent; a terminal job answers cancelled=false.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, err := h.manager.Status(id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]bool{"cancelled": h.manager.Cancel(id)},
	})
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps orchestrator errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrCancelled):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, ErrFailed), errors.Is(err, domain.ErrDataUnavailable), errors.Is(err, domain.ErrNumerical):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Error().Err(err).Msg("Internal error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

