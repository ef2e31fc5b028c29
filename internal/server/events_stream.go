package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kessanview/kessanview/internal/events"
)

// streamedTypes are the event types forwarded to dashboard clients.
var streamedTypes = []events.EventType{
	events.SnapshotUpserted,
	events.ScoreUpdated,
	events.SyncProgress,
	events.SyncCompleted,
}

// EventsStreamHandler streams system events over Server-Sent Events.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates the SSE handler.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream. The optional types query
// parameter is a comma-separated filter.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	allowed := parseTypesFilter(r.URL.Query().Get("types"))

	// Buffered so a slow client drops events instead of blocking publishers.
	eventChan := make(chan *events.Event, 100)
	handler := func(event *events.Event) {
		if allowed != nil && !allowed[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}

	var unsubscribes []func()
	for _, eventType := range streamedTypes {
		if allowed == nil || allowed[eventType] {
			unsubscribes = append(unsubscribes, h.bus.Subscribe(eventType, handler))
		}
	}
	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}()

	h.log.Info().Msg("Client connected to event stream")

	fmt.Fprintf(w, "data: %s\n\n", encodeEvent(map[string]string{"type": "connected"}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			h.log.Info().Msg("Client disconnected from event stream")
			return
		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", encodeEvent(event))
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func parseTypesFilter(raw string) map[events.EventType]bool {
	if raw == "" {
		return nil
	}
	allowed := make(map[events.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		allowed[events.EventType(strings.TrimSpace(t))] = true
	}
	return allowed
}

func encodeEvent(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"type":"error"}`
	}
	return string(data)
}
