package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dirwatch/internal/config"
	"dirwatch/internal/logging"
)

func requireLocalListener(t *testing.T) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("local listener unavailable")
	}
	_ = listener.Close()
}

func TestServeRunsUntilStopped(t *testing.T) {
	requireLocalListener(t)
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cfg, err := config.Load([]string{"--listen", "127.0.0.1:0", "--shutdown-timeout", "2s", root}, func(string) string { return "" }, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(100), logging.LevelDebug, nil)

	stop, cancel := context.WithCancel(context.Background())
	defer cancel()
	addresses := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(stop, cfg, logger, func(addr string) {
			addresses <- addr
		})
	}()

	var address string
	select {
	case address = <-addresses:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not start")
	}

	body := bytes.NewBufferString(`{"path":"` + filepath.Join(root, "sub") + `"}`)
	resp, err := http.Post("http://"+address+"/api/directory/watch", "application/json", body)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected watch 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + address + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status struct {
		WatchedCount int      `json:"watched_count"`
		Roots        []string `json:"roots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if status.WatchedCount != 1 || len(status.Roots) != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestServeFailsOnBadListenAddress(t *testing.T) {
	cfg, err := config.Load([]string{"--listen", "not-an-address"}, func(string) string { return "" }, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	err = serve(context.Background(), cfg, logging.NewDiscardLogger(), nil)
	if err == nil || !strings.Contains(err.Error(), "listen on not-an-address") {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunVersionAndHelp(t *testing.T) {
	getenv := func(string) string { return "" }

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--version"}, getenv, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "dirwatch ") {
		t.Fatalf("unexpected version output %q", stdout.String())
	}

	stdout.Reset()
	if code := run([]string{"-h"}, getenv, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0 for help, got %d", code)
	}
	if !strings.Contains(stdout.String(), "Usage: dirwatch") {
		t.Fatalf("expected usage, got %q", stdout.String())
	}

	stderr.Reset()
	if code := run([]string{"--max-watches", "0"}, getenv, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for invalid flag, got %d", code)
	}
	if !strings.Contains(stderr.String(), "max-watches") {
		t.Fatalf("expected error on stderr, got %q", stderr.String())
	}
}

func TestLogStartupConfigMasksToken(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelDebug, nil)
	cfg, err := config.Load([]string{"--token", "secret", "/srv"}, func(string) string { return "" }, nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	logStartupConfig(logger, cfg)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	settings := entries[0].Context["settings"]
	if strings.Contains(settings, "secret") {
		t.Fatalf("token leaked into logs: %q", settings)
	}
	if !strings.Contains(settings, "token=**** (flag)") || !strings.Contains(settings, "roots=/srv (flag)") {
		t.Fatalf("unexpected settings %q", settings)
	}
}
