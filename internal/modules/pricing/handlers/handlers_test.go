package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/modules/pricing"
)

func newTestRouter() chi.Router {
	logger := zerolog.Nop()
	service := pricing.NewService(4, logger)
	handler := NewHandler(service, logger)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return router
}

func postJSON(t *testing.T, router chi.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlePriceOption(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/pricing/option", map[string]interface{}{
		"s": 100, "k": 100, "t": 0.25, "r": 0.05, "q": 0, "sigma": 0.20,
		"type": "CALL",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data pricing.PriceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.InDelta(t, 4.615, response.Data.Price, 0.01)
	assert.Equal(t, pricing.MethodBlackScholes, response.Data.Method)
}

func TestHandlePriceOptionValidationError(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/pricing/option", map[string]interface{}{
		"s": -5, "k": 100, "t": 0.25, "r": 0.05, "sigma": 0.20,
		"type": "CALL",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePriceOptionBadBody(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/pricing/option", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleImpliedVol(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/pricing/implied-vol", map[string]interface{}{
		"s": 100, "k": 100, "t": 0.25, "r": 0.05, "q": 0,
		"market_price": 4.615,
		"type":         "CALL",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data pricing.ImpliedVolResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.Data.Converged)
	assert.InDelta(t, 0.20, response.Data.ImpliedVol, 0.001)
	assert.Equal(t, pricing.SolverBrent, response.Data.Method)
}

func TestHandlePriceChain(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/pricing/chain", map[string]interface{}{
		"legs": []map[string]interface{}{
			{"s": 100, "k": 95, "t": 0.5, "r": 0.05, "sigma": 0.25, "type": "CALL"},
			{"s": 100, "k": 105, "t": 0.5, "r": 0.05, "sigma": 0.25, "type": "PUT", "style": "AMERICAN"},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data struct {
			Legs []pricing.ChainLegResult `json:"legs"`
		} `json:"data"`
		Metadata struct {
			Count int `json:"count"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Metadata.Count)
	require.Len(t, response.Data.Legs, 2)
	require.NotNil(t, response.Data.Legs[0].Result)
	require.NotNil(t, response.Data.Legs[1].Result)
	assert.Equal(t, pricing.MethodBinomial, response.Data.Legs[1].Result.Method)
}

func TestHandlePriceChainEmpty(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/pricing/chain", map[string]interface{}{
		"legs": []map[string]interface{}{},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterRoutes(t *testing.T) {
	logger := zerolog.Nop()
	service := pricing.NewService(4, logger)
	handler := NewHandler(service, logger)

	router := chi.NewRouter()

	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")
}
