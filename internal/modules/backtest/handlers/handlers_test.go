package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler() *Handler {
	return NewHandler(zerolog.New(nil).Level(zerolog.Disabled))
}

func postJSON(t *testing.T, handlerFunc http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handlerFunc(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

const validConfig = `{
	"strategy": {
		"name": "trend",
		"entry_rules": [{"indicator":"close","operator":"gt","reference":"sma_20","weight":1}],
		"entry_threshold": 0.5,
		"exit_threshold": 0.5
	},
	"symbols": ["AAPL","MSFT"],
	"start_date": "2024-01-02T00:00:00Z",
	"end_date": "2024-06-28T00:00:00Z",
	"initial_capital": 100000
}`

func TestHandleValidate_EchoesNormalizedConfig(t *testing.T) {
	handler := newHandler()

	w := postJSON(t, handler.HandleValidate, "/api/backtest/validate", validConfig)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeBody(t, w)
	data := response["data"].(map[string]interface{})

	// Defaults are filled in so the client sees the effective run config.
	strategy := data["strategy"].(map[string]interface{})
	assert.Equal(t, "EQUAL_WEIGHT", strategy["sizing_method"])
	assert.Equal(t, 0.25, strategy["max_position_size"])
	assert.Equal(t, 10.0, strategy["max_positions"])

	metadata := response["metadata"].(map[string]interface{})
	assert.Equal(t, 2.0, metadata["symbols"])
}

func TestHandleValidate_RejectsBadConfig(t *testing.T) {
	handler := newHandler()

	tests := []struct {
		name string
		body string
	}{
		{"no symbols", `{"strategy":{"name":"t"},"start_date":"2024-01-02T00:00:00Z","end_date":"2024-06-28T00:00:00Z","initial_capital":100000}`},
		{"end before start", `{"strategy":{"name":"t"},"symbols":["AAPL"],"start_date":"2024-06-28T00:00:00Z","end_date":"2024-01-02T00:00:00Z","initial_capital":100000}`},
		{"zero capital", `{"strategy":{"name":"t"},"symbols":["AAPL"],"start_date":"2024-01-02T00:00:00Z","end_date":"2024-06-28T00:00:00Z"}`},
		{"bad rule operator", `{"strategy":{"name":"t","entry_rules":[{"indicator":"close","operator":"??","weight":1}]},"symbols":["AAPL"],"start_date":"2024-01-02T00:00:00Z","end_date":"2024-06-28T00:00:00Z","initial_capital":100000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, handler.HandleValidate, "/api/backtest/validate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleValidate_MalformedBody(t *testing.T) {
	handler := newHandler()

	w := postJSON(t, handler.HandleValidate, "/api/backtest/validate", `{"symbols":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCostPreview_Buy(t *testing.T) {
	handler := newHandler()

	body := `{
		"costs": {"fixed_per_trade": 1, "pct_per_trade": 0.001, "slippage_bps": 10},
		"side": "BUY",
		"quantity": 100,
		"price": 50
	}`
	w := postJSON(t, handler.HandleCostPreview, "/api/backtest/costs", body)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeBody(t, w)
	data := response["data"].(map[string]interface{})

	assert.Equal(t, "BUY", data["side"])
	assert.Equal(t, 100.0, data["quantity"])
	assert.Equal(t, 50.0, data["raw_price"])
	// Slippage moves a buy against the taker.
	assert.Greater(t, data["executed_price"].(float64), 50.0)
	assert.Greater(t, data["total_cost"].(float64), 0.0)
}

func TestHandleCostPreview_Sell(t *testing.T) {
	handler := newHandler()

	body := `{
		"costs": {"slippage_bps": 10},
		"side": "SELL",
		"quantity": 100,
		"price": 50
	}`
	w := postJSON(t, handler.HandleCostPreview, "/api/backtest/costs", body)

	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeBody(t, w)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "SELL", data["side"])
	assert.Less(t, data["executed_price"].(float64), 50.0)
}

func TestHandleCostPreview_RejectsUnknownSide(t *testing.T) {
	handler := newHandler()

	body := `{"costs": {}, "side": "HOLD", "quantity": 100, "price": 50}`
	w := postJSON(t, handler.HandleCostPreview, "/api/backtest/costs", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "side must be BUY or SELL")
}

func TestHandleCostPreview_RejectsNegativeCosts(t *testing.T) {
	handler := newHandler()

	body := `{"costs": {"slippage_bps": -1}, "side": "BUY", "quantity": 100, "price": 50}`
	w := postJSON(t, handler.HandleCostPreview, "/api/backtest/costs", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
