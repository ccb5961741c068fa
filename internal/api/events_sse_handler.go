package api

import (
	"net/http"
	"strconv"
	"time"

	"dirwatch/internal/logging"
	"dirwatch/internal/watcher"

	"github.com/google/uuid"
)

const sseEventName = "dir-event"

// EventsSSEHandler streams the same payloads as EventsHandler for clients
// that prefer EventSource. ?types= narrows the kinds.
type EventsSSEHandler struct {
	Hub               *watcher.EventHub
	Logger            *logging.Logger
	AuthToken         string
	HeartbeatInterval time.Duration
}

func (h *EventsSSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		rejectSSE(w, r, h.Logger, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if h.Hub == nil {
		failSSE(w, r, h.Logger, http.StatusInternalServerError, "event hub unavailable")
		return
	}

	stream, err := openSSE(w)
	if err != nil {
		rejectSSE(w, r, h.Logger, http.StatusInternalServerError, "sse stream unavailable", err)
		return
	}

	filter := newKindFilter(r.URL.Query()["types"])
	events, cancel := h.Hub.Subscribe()
	defer cancel()

	listenerID := uuid.NewString()
	h.logListener("listener connected", listenerID, r)
	defer h.logListener("listener disconnected", listenerID, r)

	stream.forward(r.Context(), events, filter, h.HeartbeatInterval)
}

func (h *EventsSSEHandler) logListener(message, listenerID string, r *http.Request) {
	h.Logger.Info(message, logging.Fields("api", map[string]string{
		"listener_id": listenerID,
		"transport":   "sse",
		"remote_addr": r.RemoteAddr,
		"subscribers": strconv.Itoa(h.Hub.SubscriberCount()),
	}))
}
