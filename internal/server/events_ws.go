package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kessanview/kessanview/internal/events"
)

// EventsWSHandler streams the same events as the SSE endpoint over a
// websocket, for clients behind proxies that buffer SSE.
type EventsWSHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsWSHandler creates the websocket handler.
func NewEventsWSHandler(bus *events.Bus, log zerolog.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		bus: bus,
		log: log.With().Str("component", "events_ws").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws.
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	allowed := parseTypesFilter(r.URL.Query().Get("types"))

	eventChan := make(chan *events.Event, 100)
	handler := func(event *events.Event) {
		if allowed != nil && !allowed[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
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

	h.log.Info().Msg("Client connected to websocket event stream")

	ctx := r.Context()
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-eventChan:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Websocket write failed, closing")
				return
			}
		case <-pingTicker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
