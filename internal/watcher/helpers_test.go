package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
)

type eventRecorder struct {
	events chan Event
}

func newRecorder() *eventRecorder {
	return &eventRecorder{events: make(chan Event, 64)}
}

func (recorder *eventRecorder) sink(event Event) {
	recorder.events <- event
}

func (recorder *eventRecorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case event := <-recorder.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func (recorder *eventRecorder) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case event := <-recorder.events:
		t.Fatalf("unexpected event %s %s", event.Kind, event.Path)
	case <-time.After(wait):
	}
}

func expectEvent(t *testing.T, got Event, kind Kind, parent, path string) {
	t.Helper()
	if got.Kind != kind || got.Parent != parent || got.Path != path {
		t.Fatalf("expected %s parent=%s path=%s, got %s parent=%s path=%s",
			kind, parent, path, got.Kind, got.Parent, got.Path)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("expected event timestamp")
	}
}

func newTestRegistry(t *testing.T, backend Backend) (*Registry, *metrics.Registry, *logging.Logger) {
	t.Helper()
	registry := metrics.NewRegistry()
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(100), logging.LevelDebug, nil)
	watches := NewRegistry(Options{Backend: backend, Logger: logger, Metrics: registry})
	t.Cleanup(func() {
		_ = watches.Close()
	})
	return watches, registry, logger
}

func mkdir(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	return path
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(t.TempDir())
	if err != nil {
		t.Fatalf("abs temp dir: %v", err)
	}
	return dir
}

func eventually(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
