package api

import (
	"net/http"
	"strconv"

	"dirwatch/internal/logging"
	"dirwatch/internal/watcher"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	controlMessagesPerSecond = 5
	controlMessageBurst      = 10
)

// EventsHandler streams normalized directory events over a websocket.
// Clients may send {"subscribe": [...kinds]} to narrow the stream; an empty
// list restores every kind.
type EventsHandler struct {
	Hub            *watcher.EventHub
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type eventSubscribeMessage struct {
	Subscribe []string `json:"subscribe"`
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		rejectWS(w, r, h.Logger, wsError{
			Status:  http.StatusUnauthorized,
			Message: "unauthorized",
		})
		return
	}

	listener, err := acceptWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}
	defer listener.close(websocket.CloseNormalClosure, "")

	if h.Hub == nil {
		listener.fail(r, h.Logger, wsError{
			Status:       http.StatusInternalServerError,
			Message:      "event hub unavailable",
			SendEnvelope: true,
		})
		return
	}

	filter := newKindFilter(r.URL.Query()["types"])
	events, cancel := h.Hub.Subscribe()
	defer cancel()

	listenerID := uuid.NewString()
	h.logListener("listener connected", listenerID, r)
	defer h.logListener("listener disconnected", listenerID, r)

	// The hub closing its subscriptions ends forwarding; closing the socket
	// then ends readControl below.
	forwarding := listener.forward(events, filter)
	go func() {
		<-forwarding
		listener.close(websocket.CloseGoingAway, "event stream closed")
	}()

	limiter := rate.NewLimiter(rate.Limit(controlMessagesPerSecond), controlMessageBurst)
	listener.readControl(filter, limiter, func() {
		h.Logger.Warn("listener control messages throttled", logging.Fields("api", map[string]string{
			"listener_id": listenerID,
		}))
	})
}

func (h *EventsHandler) logListener(message, listenerID string, r *http.Request) {
	h.Logger.Info(message, logging.Fields("api", map[string]string{
		"listener_id": listenerID,
		"transport":   "websocket",
		"remote_addr": r.RemoteAddr,
		"subscribers": strconv.Itoa(h.Hub.SubscriberCount()),
	}))
}
