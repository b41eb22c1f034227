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

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/indicators"
	qtesting "github.com/quantleap/quantd/internal/testing"
)

func newTestRouter() chi.Router {
	logger := zerolog.Nop()
	service := indicators.NewService(nil, 4, logger)
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

func TestHandleCompute(t *testing.T) {
	router := newTestRouter()

	bars := qtesting.TrendBars(qtesting.FixtureStart, 40, 1, 1)
	rec := postJSON(t, router, "/api/indicators/compute", map[string]interface{}{
		"symbol": "AAPL",
		"bars":   bars,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data struct {
			Symbol     string                   `json:"symbol"`
			Indicators map[string]domain.Series `json:"indicators"`
			Latest     map[string]float64       `json:"latest"`
		} `json:"data"`
		Metadata struct {
			Bars int `json:"bars"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, "AAPL", response.Data.Symbol)
	assert.Equal(t, 40, response.Metadata.Bars)

	sma, ok := response.Data.Indicators[indicators.SMA20]
	require.True(t, ok)
	assert.Equal(t, 19, sma.Warmup)

	_, ok = sma.At(18)
	assert.False(t, ok, "warm-up samples must decode as unavailable")

	v, ok := sma.At(19)
	require.True(t, ok)
	assert.InDelta(t, 10.5, v, 1e-9)

	assert.InDelta(t, 30.5, response.Data.Latest[indicators.SMA20], 1e-9)
}

func TestHandleCompute_EmptySymbol(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/indicators/compute", map[string]interface{}{
		"symbol": "",
		"bars":   qtesting.TrendBars(qtesting.FixtureStart, 30, 100, 1),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCompute_NoBars(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/indicators/compute", map[string]interface{}{
		"symbol": "AAPL",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleCompute_InvalidBody(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/indicators/compute", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleComputePanel(t *testing.T) {
	router := newTestRouter()

	history := qtesting.History(qtesting.FixtureStart, map[string][]float64{
		"AAPL": trendCloses(40, 100, 1),
		"MSFT": trendCloses(40, 200, 2),
	})

	rec := postJSON(t, router, "/api/indicators/panel", map[string]interface{}{
		"history": history,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data     indicators.IndicatorPanel `json:"data"`
		Metadata struct {
			Symbols int `json:"symbols"`
			Dates   int `json:"dates"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, 2, response.Metadata.Symbols)
	assert.Equal(t, 40, response.Metadata.Dates)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, response.Data.Symbols)
	require.Contains(t, response.Data.Sets, "AAPL")

	v, ok := response.Data.Sets["AAPL"][indicators.SMA20].At(19)
	require.True(t, ok)
	assert.Greater(t, v, 0.0)
}

func TestHandleComputePanel_EmptyHistory(t *testing.T) {
	router := newTestRouter()

	rec := postJSON(t, router, "/api/indicators/panel", map[string]interface{}{
		"history": map[string][]domain.Bar{},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func trendCloses(n int, base, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + float64(i)*step
	}
	return closes
}
