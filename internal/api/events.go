package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"parcel/internal/event"
)

const sseKeepAlive = 15 * time.Second

type EventHandler struct {
	bus *event.Bus
}

func NewEventHandler(bus *event.Bus) *EventHandler {
	return &EventHandler{bus: bus}
}

func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Subscribe)
	return r
}

// Subscribe godoc
// @Summary Subscribe to real-time events
// @Description Open a Server-Sent Events (SSE) connection to receive upload progress, lifecycle changes and messages pushed by the host
// @Tags events
// @Produce text/event-stream
// @Success 200 {string} string "SSE connection established"
// @Router /events [get]
func (h *EventHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(events)

	fmt.Fprintf(w, "data: {\"type\": \"connected\"}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			jsonData, err := json.Marshal(ev)
			if err == nil {
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, jsonData)
				flusher.Flush()
			}

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
