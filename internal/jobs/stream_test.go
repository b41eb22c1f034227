package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func dialStream(t *testing.T, srv *httptest.Server, jobID string) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/" + jobID + "/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn, ctx
}

func TestHandleStream_PushesProgressUntilTerminal(t *testing.T) {
	manager, router := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	id, err := manager.Submit(KindBacktest, nil)
	require.NoError(t, err)

	conn, ctx := dialStream(t, srv, id)

	// First frame is the snapshot at subscribe time.
	var frame ProgressUpdate
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, id, frame.JobID)
	assert.Equal(t, StatePending, frame.State)

	job, _, reporter := manager.claim(id)
	require.NotNil(t, job)
	reporter.minInterval = 0
	reporter.Report(1, 4, "day 1/4")

	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, StateRunning, frame.State)
	assert.InDelta(t, 25.0, frame.Progress, 1e-9)
	assert.Equal(t, 1, frame.Current)
	assert.Equal(t, 4, frame.Total)
	assert.Equal(t, "day 1/4", frame.Message)

	manager.finish(id, "done", nil)

	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, StateCompleted, frame.State)
	assert.InDelta(t, 100.0, frame.Progress, 1e-9)

	// After the terminal frame the server closes normally.
	err = wsjson.Read(ctx, conn, &frame)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleStream_TerminalJobGetsOneFrameAndCloses(t *testing.T) {
	manager, router := newTestRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	id, err := manager.Submit(KindBacktest, nil)
	require.NoError(t, err)
	require.True(t, manager.Cancel(id))

	conn, ctx := dialStream(t, srv, id)

	var frame ProgressUpdate
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, StateCancelled, frame.State)

	err = wsjson.Read(ctx, conn, &frame)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleStream_UnknownJobAnswers404(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/jobs/no-such-id/stream", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
