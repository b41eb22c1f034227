package jobs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// HandleStream handles GET /api/jobs/{jobID}/stream. It upgrades to a
// WebSocket and pushes progress frames until the job goes terminal, then
// closes with a normal closure. The subscription is taken before the
// first snapshot so a transition between the two is never missed.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	updates, unsubscribe, err := h.manager.SubscribeProgress(jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer unsubscribe()

	snapshot, err := h.manager.Status(jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Str("job_id", jobID).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	// We only write; CloseRead surfaces client disconnects through ctx.
	ctx := conn.CloseRead(r.Context())

	first := ProgressUpdate{
		JobID:    snapshot.ID,
		State:    snapshot.State,
		Progress: snapshot.Progress,
		Message:  snapshot.Message,
		Error:    snapshot.Error,
	}
	if err := wsjson.Write(ctx, conn, first); err != nil {
		return
	}
	if snapshot.State.Terminal() {
		conn.Close(websocket.StatusNormalClosure, "job finished")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				// Channel closed on terminal; fetch the final state for
				// the closing frame in case the terminal send was dropped.
				if final, err := h.manager.Status(jobID); err == nil {
					_ = wsjson.Write(ctx, conn, ProgressUpdate{
						JobID:    final.ID,
						State:    final.State,
						Progress: final.Progress,
						Message:  final.Message,
						Error:    final.Error,
					})
				}
				conn.Close(websocket.StatusNormalClosure, "job finished")
				return
			}
			if err := wsjson.Write(ctx, conn, update); err != nil {
				return
			}
			if update.State.Terminal() {
				conn.Close(websocket.StatusNormalClosure, "job finished")
				return
			}
		}
	}
}
