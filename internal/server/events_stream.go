package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/events"
)

// EventsStreamHandler streams bus events to clients over Server-Sent Events.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates the unified SSE stream handler.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream. A comma-separated ?types=
// parameter narrows the subscription; without it every event type is
// forwarded.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	subscribed := events.AllEventTypes()
	typesFilter := r.URL.Query().Get("types")
	if typesFilter != "" {
		subscribed = subscribed[:0]
		for _, raw := range strings.Split(typesFilter, ",") {
			if t := strings.TrimSpace(raw); t != "" {
				subscribed = append(subscribed, events.EventType(t))
			}
		}
	}

	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to event stream")

	// Buffered so a slow client drops frames instead of blocking emitters.
	eventChan := make(chan *events.Event, 100)
	forward := func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	}

	for _, eventType := range subscribed {
		unsubscribe := h.bus.Subscribe(eventType, forward)
		defer unsubscribe()
	}

	done := r.Context().Done()

	// Send initial connection message
	fmt.Fprintf(w, "data: %s\n\n", h.encodeFrame(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	// Heartbeat ticker to keep connection alive
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeFrame(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			}))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeFrame(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// encodeFrame encodes one SSE payload to JSON.
func (h *EventsStreamHandler) encodeFrame(frame map[string]interface{}) string {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
