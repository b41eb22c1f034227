// Package handlers provides HTTP handlers for the backtest module's
// synchronous surface. Runs themselves go through the job API; these
// endpoints validate configs and preview cost-model behavior without
// queueing anything.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/backtest"
)

// Handler handles backtest HTTP requests
type Handler struct {
	log zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{
		log: log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleValidate handles POST /api/backtest/validate. It normalizes and
// validates a run config and echoes the effective form, so clients see
// applied defaults before submitting a job.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var cfg backtest.BacktestConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": cfg,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"symbols":   len(cfg.Symbols),
		},
	})
}

// HandleCostPreview handles POST /api/backtest/costs. It prices a
// hypothetical order through a cost model with unbounded cash, exposing
// the executed price and the cost breakdown.
func (h *Handler) HandleCostPreview(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Costs    backtest.CostModel `json:"costs"`
		Side     string             `json:"side"`
		Quantity float64            `json:"quantity"`
		Price    float64            `json:"price"`
		Volume   *float64           `json:"volume,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := input.Costs.Validate(); err != nil {
		writeError(w, h.log, err)
		return
	}

	volume := 0.0
	if input.Volume != nil {
		volume = *input.Volume
	}

	var (
		exec backtest.Execution
		err  error
	)
	switch input.Side {
	case backtest.SideBuy:
		exec, err = input.Costs.Buy(input.Quantity, input.Price, volume, 1e18)
	case backtest.SideSell:
		exec, err = input.Costs.Sell(input.Quantity, input.Quantity, input.Price, volume)
	default:
		writeError(w, h.log, fmt.Errorf("%w: side must be BUY or SELL", domain.ErrValidation))
		return
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": exec,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
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
