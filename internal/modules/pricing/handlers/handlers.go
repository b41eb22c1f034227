// Package handlers provides HTTP handlers for option pricing operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/pricing"
)

// Handler handles option pricing HTTP requests
type Handler struct {
	service *pricing.Service
	log     zerolog.Logger
}

// NewHandler creates a new pricing handler
func NewHandler(service *pricing.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "pricing").Logger(),
	}
}

// HandlePriceOption handles POST /api/pricing/option
func (h *Handler) HandlePriceOption(w http.ResponseWriter, r *http.Request) {
	var req pricing.OptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Price(req)
	if err != nil {
		h.writeError(w, err, "Failed to price option")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleImpliedVol handles POST /api/pricing/implied-vol
func (h *Handler) HandleImpliedVol(w http.ResponseWriter, r *http.Request) {
	var req pricing.ImpliedVolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.SolveImpliedVol(req)
	if err != nil {
		h.writeError(w, err, "Failed to solve implied volatility")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandlePriceChain handles POST /api/pricing/chain
func (h *Handler) HandlePriceChain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Legs []pricing.OptionRequest `json:"legs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.service.PriceChain(r.Context(), req.Legs)
	if err != nil {
		h.writeError(w, err, "Failed to price chain")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"legs": results,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(results),
		},
	})
}

// writeError maps domain sentinels onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNumerical):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, domain.ErrDeadline):
		status = http.StatusRequestTimeout
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
