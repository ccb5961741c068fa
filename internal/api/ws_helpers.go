package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"dirwatch/internal/logging"
	"dirwatch/internal/watcher"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
	// Close frame payloads are limited to 125 bytes, two of them the code.
	wsMaxCloseReason = 123
)

// wsListener is one upgraded event listener socket. Writes are serialized
// and each is bounded by wsWriteTimeout.
type wsListener struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

type wsError struct {
	Status       int
	CloseCode    int
	Message      string
	Err          error
	SendEnvelope bool
}

type wsErrorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	CloseCode int    `json:"close_code,omitempty"`
}

func acceptWebSocket(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*wsListener, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, allowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &wsListener{conn: conn}, nil
}

func (l *wsListener) writeJSON(value any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return l.conn.WriteJSON(value)
}

// close sends a close frame with code and reason, then drops the socket.
// Only the first call has any effect.
func (l *wsListener) close(code int, reason string) {
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, truncateCloseReason(reason)),
			time.Now().Add(wsWriteTimeout))
		l.writeMu.Unlock()
		_ = l.conn.Close()
	})
}

// fail reports err to the peer, optionally as a JSON envelope first, and
// closes the socket.
func (l *wsListener) fail(r *http.Request, logger *logging.Logger, wsErr wsError) {
	wsErr = wsErr.normalized()
	logWSError(logger, r, wsErr)
	if wsErr.SendEnvelope {
		_ = l.writeJSON(wsErrorPayload{
			Type:      "error",
			Message:   wsErr.Message,
			Status:    wsErr.Status,
			CloseCode: wsErr.CloseCode,
		})
	}
	l.close(wsErr.CloseCode, wsErr.Message)
}

// forward writes every event filter allows until events is closed or a
// write fails. The returned channel is closed when forwarding stops.
func (l *wsListener) forward(events <-chan watcher.Event, filter *kindFilter) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			if !filter.Allows(event.Kind) {
				continue
			}
			if err := l.writeJSON(payloadForEvent(event)); err != nil {
				return
			}
		}
	}()
	return done
}

// readControl applies {"subscribe": [...]} messages to filter until the
// socket fails. Messages over the limiter's budget are discarded and
// throttled is called once per run of discarded messages.
func (l *wsListener) readControl(filter *kindFilter, limiter *rate.Limiter, throttled func()) {
	inThrottle := false
	for {
		msgType, msg, err := l.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !limiter.Allow() {
			if !inThrottle && throttled != nil {
				throttled()
			}
			inThrottle = true
			continue
		}
		inThrottle = false
		var control eventSubscribeMessage
		if err := json.Unmarshal(msg, &control); err != nil {
			continue
		}
		filter.Set(control.Subscribe)
	}
}

// rejectWS answers a request that never got upgraded.
func rejectWS(w http.ResponseWriter, r *http.Request, logger *logging.Logger, wsErr wsError) {
	wsErr = wsErr.normalized()
	logWSError(logger, r, wsErr)
	http.Error(w, wsErr.Message, wsErr.Status)
}

func (e wsError) normalized() wsError {
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	e.Message = strings.TrimSpace(e.Message)
	if e.Message == "" {
		e.Message = http.StatusText(e.Status)
	}
	if e.Message == "" {
		e.Message = "websocket error"
	}
	if e.CloseCode == 0 {
		e.CloseCode = closeCodeForStatus(e.Status)
	}
	return e
}

func logWSError(logger *logging.Logger, r *http.Request, wsErr wsError) {
	if logger == nil || r == nil {
		return
	}
	wsErr = wsErr.normalized()
	fields := map[string]string{
		"path":       r.URL.Path,
		"status":     strconv.Itoa(wsErr.Status),
		"close_code": strconv.Itoa(wsErr.CloseCode),
		"message":    wsErr.Message,
	}
	if r.RemoteAddr != "" {
		fields["remote_addr"] = r.RemoteAddr
	}
	if wsErr.Err != nil {
		fields["error"] = wsErr.Err.Error()
	}
	if wsErr.Status >= http.StatusInternalServerError {
		logger.Error("websocket error", logging.Fields("api", fields))
		return
	}
	logger.Warn("websocket error", logging.Fields("api", fields))
}

func closeCodeForStatus(status int) int {
	switch {
	case status == http.StatusBadRequest:
		return websocket.CloseProtocolError
	case status == http.StatusServiceUnavailable:
		return websocket.CloseTryAgainLater
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseInternalServerErr
	}
}

// truncateCloseReason cuts reason to fit a close frame without splitting a
// UTF-8 sequence.
func truncateCloseReason(reason string) string {
	if len(reason) <= wsMaxCloseReason {
		return reason
	}
	cut := wsMaxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
