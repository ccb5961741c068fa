package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"dirwatch/internal/logging"
	"dirwatch/internal/watcher"
)

const (
	defaultSSEHeartbeatInterval = 15 * time.Second
	sseRetryInterval            = 5 * time.Second
)

var errSSENoFlusher = errors.New("sse response writer does not support flushing")

// sseStream writes server-sent events to a flushing response. Every write
// is flushed immediately.
type sseStream struct {
	out     io.Writer
	flusher http.Flusher
}

// openSSE sends the event-stream headers and the reconnect hint.
func openSSE(w http.ResponseWriter) (*sseStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errSSENoFlusher
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", cacheControlNoCache)
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")

	stream := &sseStream{out: w, flusher: flusher}
	if err := stream.emit(fmt.Sprintf("retry: %d\n\n", sseRetryInterval.Milliseconds())); err != nil {
		return nil, err
	}
	return stream, nil
}

func (s *sseStream) emit(frame string) error {
	if _, err := io.WriteString(s.out, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) comment(text string) error {
	return s.emit(": " + text + "\n\n")
}

// event writes one frame with an optional event name and payload as JSON
// data lines.
func (s *sseStream) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var frame bytes.Buffer
	if name != "" {
		frame.WriteString("event: " + name + "\n")
	}
	if err := writeSSEData(&frame, data); err != nil {
		return err
	}
	return s.emit(frame.String())
}

// forward sends events filter allows as sseEventName frames, with a comment
// heartbeat while idle. It returns when ctx ends, events is closed or a
// write fails.
func (s *sseStream) forward(ctx context.Context, events <-chan watcher.Event, filter *kindFilter, heartbeat time.Duration) {
	if heartbeat <= 0 {
		heartbeat = defaultSSEHeartbeatInterval
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.comment("ping"); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if !filter.Allows(event.Kind) {
				continue
			}
			if err := s.event(sseEventName, payloadForEvent(event)); err != nil {
				return
			}
		}
	}
}

func writeSSEData(w io.Writer, data []byte) error {
	var frame bytes.Buffer
	if len(data) == 0 {
		frame.WriteString("data:\n")
	}
	for line := range bytes.Lines(data) {
		frame.WriteString("data: ")
		frame.Write(bytes.TrimSuffix(line, []byte("\n")))
		frame.WriteByte('\n')
	}
	frame.WriteByte('\n')
	_, err := w.Write(frame.Bytes())
	return err
}

// failSSE reports a server-side failure in-stream so EventSource clients
// can surface it, falling back to a plain HTTP error.
func failSSE(w http.ResponseWriter, r *http.Request, logger *logging.Logger, status int, message string) {
	stream, err := openSSE(w)
	if err != nil {
		rejectSSE(w, r, logger, status, message, err)
		return
	}
	logSSEError(logger, r, status, message, nil)
	_ = stream.event("", wsErrorPayload{
		Type:    "error",
		Message: message,
		Status:  status,
	})
}

func rejectSSE(w http.ResponseWriter, r *http.Request, logger *logging.Logger, status int, message string, err error) {
	logSSEError(logger, r, status, message, err)
	http.Error(w, message, status)
}

func logSSEError(logger *logging.Logger, r *http.Request, status int, message string, err error) {
	fields := map[string]string{
		"path":        r.URL.Path,
		"status":      strconv.Itoa(status),
		"message":     message,
		"remote_addr": r.RemoteAddr,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if status >= http.StatusInternalServerError {
		logger.Error("sse error", logging.Fields("api", fields))
		return
	}
	logger.Warn("sse error", logging.Fields("api", fields))
}
