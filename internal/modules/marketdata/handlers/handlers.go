// Package handlers provides HTTP handlers for market data ingest and lookup.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/marketdata"
)

// Handler handles HTTP requests for market data operations
type Handler struct {
	service *marketdata.Service
	log     zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(service *marketdata.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "marketdata").Logger(),
	}
}

// HandleIngestBars handles PUT /api/marketdata/{symbol}/bars
// The payload is either a JSON array of bars or a CSV document with a
// date,open,high,low,close,volume header, selected by Content-Type.
func (h *Handler) HandleIngestBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	var (
		bars   []domain.Bar
		source string
		err    error
	)
	switch mediaType(r) {
	case "text/csv":
		source = marketdata.SourceCSV
		bars, err = marketdata.ParseCSV(r.Body)
	default:
		source = marketdata.SourceJSON
		err = json.NewDecoder(r.Body).Decode(&bars)
		if err != nil {
			err = fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err)
		}
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	count, err := h.service.IngestBars(r.Context(), symbol, bars, source)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"bars":   count,
			"source": source,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetBars handles GET /api/marketdata/{symbol}/bars?start=&end=
func (h *Handler) HandleGetBars(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	start, end, err := parseDateRange(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	bars, err := h.service.Bars(r.Context(), symbol, start, end)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"bars":   bars,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(bars),
		},
	})
}

// HandleListSymbols handles GET /api/marketdata/symbols
func (h *Handler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.service.Symbols(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbols": symbols,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(symbols),
		},
	})
}

// HandleGenerateSynthetic handles POST /api/marketdata/{symbol}/synthetic
func (h *Handler) HandleGenerateSynthetic(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	var cfg marketdata.GBMConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	count, err := h.service.GenerateSynthetic(r.Context(), symbol, cfg)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"bars":   count,
			"seed":   cfg.Seed,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleIngestOptions handles PUT /api/marketdata/options
func (h *Handler) HandleIngestOptions(w http.ResponseWriter, r *http.Request) {
	var contracts []domain.OptionContract
	if err := json.NewDecoder(r.Body).Decode(&contracts); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	count, err := h.service.IngestOptionContracts(r.Context(), contracts)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"contracts": count,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleOptionsChain handles GET /api/marketdata/{symbol}/options?expiry=
func (h *Handler) HandleOptionsChain(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	var expiry *time.Time
	if raw := r.URL.Query().Get("expiry"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "expiry must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		expiry = &t
	}

	contracts, err := h.service.OptionsChain(r.Context(), symbol, expiry)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":    symbol,
			"contracts": contracts,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(contracts),
		},
	})
}

func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

// parseDateRange reads optional start/end query params as YYYY-MM-DD.
// Missing bounds default to an open range.
func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	start := time.Time{}
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return start, end, fmt.Errorf("%w: start must be YYYY-MM-DD", domain.ErrValidation)
		}
		start = t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return start, end, fmt.Errorf("%w: end must be YYYY-MM-DD", domain.ErrValidation)
		}
		end = t
	}
	return start, end, nil
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
	case errors.Is(err, domain.ErrDataUnavailable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Error().Err(err).Msg("Internal error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
