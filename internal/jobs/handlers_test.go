package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/domain"
)

func newTestRouter(t *testing.T) (*Manager, chi.Router) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	manager := NewManager(nil, nil, logger)
	manager.RegisterRunner(KindBacktest, &stubRunner{})
	manager.RegisterRunner(KindCompare, &stubRunner{})
	manager.RegisterRunner(KindMonteCarlo, &stubRunner{})
	manager.RegisterRunner(KindStressTest, &stubRunner{})

	handler := NewHandler(manager, logger)
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		handler.RegisterRoutes(r)
	})
	return manager, router
}

func doJSON(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHandler_SubmitBacktestReturnsJobID(t *testing.T) {
	manager, router := newTestRouter(t)

	body := `{"strategy":{"name":"demo"},"symbols":["AAPL"],"start_date":"2024-01-02","end_date":"2024-03-01","initial_capital":10000}`
	w := doJSON(t, router, "POST", "/api/jobs/backtest", body)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	jobID, ok := data["job_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, jobID)

	metadata := response["metadata"].(map[string]interface{})
	assert.Equal(t, "backtest", metadata["kind"])

	// The id answered to the client must already resolve in the registry.
	job, err := manager.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, job.State)
}

func TestHandler_SubmitRejectsMalformedBody(t *testing.T) {
	_, router := newTestRouter(t)

	for _, path := range []string{
		"/api/jobs/backtest",
		"/api/jobs/compare",
		"/api/jobs/monte-carlo",
		"/api/jobs/stress-test",
	} {
		w := doJSON(t, router, "POST", path, `{"strategy":`)
		assert.Equal(t, http.StatusBadRequest, w.Code, "path %s", path)
	}
}

func TestHandler_SubmitStressTestRejectsUnknownFields(t *testing.T) {
	_, router := newTestRouter(t)

	body := `{"scenarios":[{"name":"crash","market_shock":-0.3}],"positions":[{"symbol":"AAPL","market_value":50000}],"market_mood":"grim"}`
	w := doJSON(t, router, "POST", "/api/jobs/stress-test", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "market_mood")
}

func TestHandler_StatusUnknownJob(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/jobs/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ListFiltersAndValidatesLimit(t *testing.T) {
	manager, router := newTestRouter(t)

	first, err := manager.Submit(KindMonteCarlo, nil)
	require.NoError(t, err)
	second, err := manager.Submit(KindStressTest, nil)
	require.NoError(t, err)

	w := doJSON(t, router, "GET", "/api/jobs/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	listed := response["data"].([]interface{})
	require.Len(t, listed, 2)
	newest := listed[0].(map[string]interface{})
	assert.Equal(t, second, newest["id"])
	oldest := listed[1].(map[string]interface{})
	assert.Equal(t, first, oldest["id"])
	metadata := response["metadata"].(map[string]interface{})
	assert.Equal(t, 2.0, metadata["count"])

	// Terminal filter excludes both pending jobs.
	w = doJSON(t, router, "GET", "/api/jobs/?state=COMPLETED", "")
	assert.Equal(t, http.StatusOK, w.Code)
	response = decodeResponse(t, w)
	assert.Len(t, response["data"], 0)

	w = doJSON(t, router, "GET", "/api/jobs/?limit=1", "")
	response = decodeResponse(t, w)
	assert.Len(t, response["data"], 1)

	w = doJSON(t, router, "GET", "/api/jobs/?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, router, "GET", "/api/jobs/?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ResultLifecycleStatusCodes(t *testing.T) {
	manager, router := newTestRouter(t)

	id, err := manager.Submit(KindBacktest, nil)
	require.NoError(t, err)

	// Still pending: the result is not ready.
	w := doJSON(t, router, "GET", "/api/jobs/"+id+"/result", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	job, _, _ := manager.claim(id)
	require.NotNil(t, job)
	w = doJSON(t, router, "GET", "/api/jobs/"+id+"/result", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	manager.finish(id, map[string]float64{"final_value": 10216}, nil)
	w = doJSON(t, router, "GET", "/api/jobs/"+id+"/result", "")
	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, 10216.0, data["final_value"])
}

func TestHandler_ResultOfFailedJob(t *testing.T) {
	manager, router := newTestRouter(t)

	id, err := manager.Submit(KindBacktest, nil)
	require.NoError(t, err)
	job, _, _ := manager.claim(id)
	require.NotNil(t, job)
	manager.finish(id, nil, domain.ErrDataUnavailable)

	w := doJSON(t, router, "GET", "/api/jobs/"+id+"/result", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandler_CancelFlow(t *testing.T) {
	manager, router := newTestRouter(t)

	id, err := manager.Submit(KindBacktest, nil)
	require.NoError(t, err)

	w := doJSON(t, router, "DELETE", "/api/jobs/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	response := decodeResponse(t, w)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, true, data["cancelled"])

	// Cancelling a terminal job is a no-op, not an error.
	w = doJSON(t, router, "DELETE", "/api/jobs/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	response = decodeResponse(t, w)
	data = response["data"].(map[string]interface{})
	assert.Equal(t, false, data["cancelled"])

	// The cancelled job's result answers 410.
	w = doJSON(t, router, "GET", "/api/jobs/"+id+"/result", "")
	assert.Equal(t, http.StatusGone, w.Code)

	w = doJSON(t, router, "DELETE", "/api/jobs/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
