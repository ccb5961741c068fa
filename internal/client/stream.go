package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"dirwatch/internal/watcher"

	"github.com/gorilla/websocket"
)

const streamBufferSize = 64

// ErrStreamClosed is reported by Stream.Err after Close.
var ErrStreamClosed = errors.New("event stream closed")

// Stream is a live websocket subscription to normalized directory events.
type Stream struct {
	conn   *websocket.Conn
	events chan watcher.Event
	stop   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

type streamFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Subscribe opens the server's event websocket. kinds narrows the stream;
// none means every kind.
func (c *Client) Subscribe(ctx context.Context, kinds ...watcher.Kind) (*Stream, error) {
	baseURL, err := c.baseURL()
	if err != nil {
		return nil, err
	}
	target, err := eventsURL(baseURL, c.Token, kinds)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if token := strings.TrimSpace(c.Token); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, response, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if response != nil {
			defer response.Body.Close()
			return nil, readHTTPError(response)
		}
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	stream := &Stream{
		conn:   conn,
		events: make(chan watcher.Event, streamBufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go stream.readLoop()
	return stream, nil
}

func eventsURL(baseURL, token string, kinds []watcher.Kind) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http", "":
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws/events"

	query := url.Values{}
	if len(kinds) > 0 {
		names := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			names = append(names, string(kind))
		}
		query.Set("types", strings.Join(names, ","))
	}
	if token = strings.TrimSpace(token); token != "" {
		query.Set("token", token)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Events is closed when the connection ends; Err then reports why.
func (s *Stream) Events() <-chan watcher.Event {
	return s.events
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetKinds replaces the server-side kind filter for this stream.
func (s *Stream) SetKinds(kinds ...watcher.Kind) error {
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(map[string][]string{"subscribe": names})
}

func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setErr(ErrStreamClosed)
		close(s.stop)
		s.mu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.mu.Unlock()
		err = s.conn.Close()
	})
	<-s.done
	return err
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(err)
			return
		}
		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type == "error" {
			s.setErr(&HTTPError{StatusCode: frame.Status, Message: frame.Message})
			continue
		}
		if _, ok := watcher.ParseKind(frame.Type); !ok {
			continue
		}
		var event watcher.Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		select {
		case s.events <- event:
		case <-s.stop:
			return
		}
	}
}
