// Package handlers provides HTTP handlers for signal evaluation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/signals"
)

// Handler handles signal evaluation HTTP requests
type Handler struct {
	log zerolog.Logger
}

// NewHandler creates a new signals handler
func NewHandler(log zerolog.Logger) *Handler {
	return &Handler{
		log: log.With().Str("handler", "signals").Logger(),
	}
}

// HandleEvaluate handles POST /api/signals/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Series     map[string]domain.Series `json:"series"`
		EntryRules []signals.Rule           `json:"entry_rules"`
		ExitRules  []signals.Rule           `json:"exit_rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Series) == 0 {
		h.writeError(w, domain.ErrValidation, "no series to evaluate")
		return
	}
	if err := signals.ValidateRules(req.EntryRules); err != nil {
		h.writeError(w, err, "invalid entry rules")
		return
	}
	if err := signals.ValidateRules(req.ExitRules); err != nil {
		h.writeError(w, err, "invalid exit rules")
		return
	}

	n := signals.AxisLength(req.Series)
	entry := signals.CompositeSeries(req.Series, req.EntryRules, n)
	exit := signals.CompositeSeries(req.Series, req.ExitRules, n)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"entry": entry,
			"exit":  exit,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"length":    n,
		},
	})
}

// writeError maps domain sentinels onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDataUnavailable):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	}
	http.Error(w, err.Error(), status)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
