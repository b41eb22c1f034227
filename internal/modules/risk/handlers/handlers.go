// Package handlers provides HTTP handlers for risk analytics.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/risk"
)

// Handler handles risk analytics HTTP requests
type Handler struct {
	log zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{
		log: log.With().Str("handler", "risk").Logger(),
	}
}

// HandleMetrics handles POST /api/risk/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	var input risk.MetricsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	metrics, err := risk.ComputeMetrics(input)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": metrics,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"samples":   len(input.EquityCurve),
		},
	})
}

// HandleVaR handles POST /api/risk/var
func (h *Handler) HandleVaR(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Returns []float64 `json:"returns"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tail, err := risk.ComputeTailRisk(input.Returns)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": tail,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleCorrelation handles POST /api/risk/correlation
func (h *Handler) HandleCorrelation(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Returns map[string][]float64 `json:"returns"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := risk.ComputeCorrelation(input.Returns)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"symbols":   len(result.Symbols),
		},
	})
}

// HandleDrawdown handles POST /api/risk/drawdown
func (h *Handler) HandleDrawdown(w http.ResponseWriter, r *http.Request) {
	var input struct {
		EquityCurve []float64 `json:"equity_curve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(input.EquityCurve) == 0 {
		http.Error(w, "equity_curve is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": risk.ComputeDrawdown(input.EquityCurve),
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"samples":   len(input.EquityCurve),
		},
	})
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to HTTP status codes
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrDataUnavailable), errors.Is(err, domain.ErrNumerical):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		log.Error().Err(err).Msg("Internal error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
