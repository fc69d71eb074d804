package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"cinesync/models"
	"cinesync/services/lists"
)

type eventsService interface {
	Subscribe(ctx context.Context, list string) (<-chan []models.ListItem, func())
}

var _ eventsService = (*lists.Manager)(nil)

// EventsHandler streams list snapshots over SSE. Connecting clients
// receive the current state immediately, then every successful mutation
// or reload.
type EventsHandler struct {
	Service eventsService
}

func NewEventsHandler(service eventsService) *EventsHandler {
	return &EventsHandler{Service: service}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	list := mux.Vars(r)["list"]
	if !models.KnownList(list) {
		http.Error(w, "unknown list", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := h.Service.Subscribe(r.Context(), list)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case items, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(items)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", list, data)
			flusher.Flush()
		}
	}
}
