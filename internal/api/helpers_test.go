package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
	"dirwatch/internal/watcher"
)

type testEnv struct {
	mux     *http.ServeMux
	hub     *watcher.EventHub
	backend *watcher.FakeBackend
	logger  *logging.Logger
	metrics *metrics.Registry
	root    string
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	root, err := filepath.Abs(t.TempDir())
	if err != nil {
		t.Fatalf("abs temp dir: %v", err)
	}
	backend := watcher.NewFakeBackend()
	registry := metrics.NewRegistry()
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(200), logging.LevelDebug, nil)
	hub := watcher.NewEventHub(context.Background(), watcher.HubOptions{
		Backend: backend,
		Logger:  logger,
		Metrics: registry,
	})
	t.Cleanup(func() {
		_ = hub.Close()
	})

	mux := http.NewServeMux()
	RegisterRoutes(mux, RouteOptions{
		Hub:       hub,
		Logger:    logger,
		Metrics:   registry,
		AuthToken: token,
		Roots:     []string{root},
	})
	return &testEnv{mux: mux, hub: hub, backend: backend, logger: logger, metrics: registry, root: root}
}

func (env *testEnv) mkdir(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(env.root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return path
}

func (env *testEnv) touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(env.root, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func newLocalServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping server test (listener unavailable): %v", err)
	}
	server := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}
