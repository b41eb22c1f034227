// Package handlers provides HTTP handlers for indicator computation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/indicators"
)

// Handler handles indicator HTTP requests
type Handler struct {
	service *indicators.Service
	log     zerolog.Logger
}

// NewHandler creates a new indicators handler
func NewHandler(service *indicators.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "indicators").Logger(),
	}
}

// HandleCompute handles POST /api/indicators/compute
func (h *Handler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string       `json:"symbol"`
		Bars   []domain.Bar `json:"bars"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	set, err := h.service.ComputeSymbol(req.Symbol, req.Bars)
	if err != nil {
		h.writeError(w, err, "Failed to compute indicators")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":     req.Symbol,
			"indicators": set,
			"latest":     indicators.LatestValues(set),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"bars":      len(req.Bars),
		},
	})
}

// HandleComputePanel handles POST /api/indicators/panel
func (h *Handler) HandleComputePanel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		History map[string][]domain.Bar `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	panel, err := domain.NewPricePanel(req.History)
	if err != nil {
		h.writeError(w, err, "Failed to build price panel")
		return
	}

	result, err := h.service.ComputePanel(r.Context(), panel)
	if err != nil {
		h.writeError(w, err, "Failed to compute indicator panel")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"symbols":   len(result.Symbols),
			"dates":     len(result.Dates),
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
