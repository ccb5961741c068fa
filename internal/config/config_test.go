package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dirwatch/internal/logging"

	"github.com/google/go-cmp/cmp"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dirwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, envMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defaults := DefaultValues()
	if cfg.Listen != defaults.Listen || cfg.MaxWatches != defaults.MaxWatches {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("expected info level, got %q", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected 10s shutdown timeout, got %s", cfg.ShutdownTimeout)
	}
	if len(cfg.Roots) != 0 {
		t.Fatalf("expected no roots, got %v", cfg.Roots)
	}
	for key, source := range cfg.Sources {
		if source != SourceDefault {
			t.Fatalf("expected %s from defaults, got %s", key, source)
		}
	}
}

func TestLoadPositionalRoots(t *testing.T) {
	cfg, err := Load([]string{"--listen", ":9000", "/srv/a", "/srv/b"}, envMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"/srv/a", "/srv/b"}, cfg.Roots); diff != "" {
		t.Fatalf("roots mismatch (-want +got):\n%s", diff)
	}
	if cfg.Sources[KeyRoots] != SourceFlag || cfg.Sources[KeyListen] != SourceFlag {
		t.Fatalf("expected flag sources, got %v", cfg.Sources)
	}
}

func TestLoadLayerPrecedence(t *testing.T) {
	path := writeConfigFile(t, `
listen: 0.0.0.0:4000
roots: [/from/file]
token: file-token
log_level: debug
max_watches: 10
read_concurrency: 2
allowed_origins: [app.example]
shutdown_timeout: 3s
`)
	env := envMap(map[string]string{
		EnvConfigPath:          path,
		"DIRWATCH_MAX_WATCHES": "20",
		"DIRWATCH_ROOTS":       "/env/a, /env/b",
		"DIRWATCH_TOKEN":       "env-token",
	})

	cfg, err := Load([]string{"--max-watches", "30"}, env, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ConfigPath != path {
		t.Fatalf("expected config path %q, got %q", path, cfg.ConfigPath)
	}
	if cfg.Listen != "0.0.0.0:4000" || cfg.Sources[KeyListen] != SourceFile {
		t.Fatalf("expected listen from file, got %q (%s)", cfg.Listen, cfg.Sources[KeyListen])
	}
	if diff := cmp.Diff([]string{"/env/a", "/env/b"}, cfg.Roots); diff != "" {
		t.Fatalf("roots mismatch (-want +got):\n%s", diff)
	}
	if cfg.AuthToken != "env-token" || cfg.Sources[KeyToken] != SourceEnv {
		t.Fatalf("expected env token, got %q", cfg.AuthToken)
	}
	if cfg.MaxWatches != 30 || cfg.Sources[KeyMaxWatches] != SourceFlag {
		t.Fatalf("expected flag max watches, got %d", cfg.MaxWatches)
	}
	if cfg.ReadConcurrency != 2 || cfg.Sources[KeyReadConcurrency] != SourceFile {
		t.Fatalf("expected file read concurrency, got %d", cfg.ReadConcurrency)
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Fatalf("expected debug level, got %q", cfg.LogLevel)
	}
	if diff := cmp.Diff([]string{"app.example"}, cfg.AllowedOrigins); diff != "" {
		t.Fatalf("origins mismatch (-want +got):\n%s", diff)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", cfg.ShutdownTimeout)
	}
}

func TestLoadConfigFlagOverridesEnvPath(t *testing.T) {
	envPath := writeConfigFile(t, "listen: env-file:1\n")
	flagPath := writeConfigFile(t, "listen: flag-file:2\n")

	cfg, err := Load([]string{"--config", flagPath}, envMap(map[string]string{EnvConfigPath: envPath}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != "flag-file:2" {
		t.Fatalf("expected listen from flag config, got %q", cfg.Listen)
	}
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	path := writeConfigFile(t, "listen: :3000\nrecursive: true\n")
	if _, err := Load([]string{"--config", path}, envMap(nil), nil); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfigFile(t, "")
	cfg, err := Load([]string{"--config", path}, envMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != DefaultValues().Listen {
		t.Fatalf("expected default listen, got %q", cfg.Listen)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, envMap(nil), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist error, got %v", err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	cases := [][]string{
		{"--max-watches", "0"},
		{"--read-concurrency", "-1"},
		{"--log-level", "loud"},
		{"--listen", " "},
		{"--shutdown-timeout", "0s"},
	}
	for _, args := range cases {
		if _, err := Load(args, envMap(nil), nil); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestLoadIgnoresInvalidEnv(t *testing.T) {
	cfg, err := Load(nil, envMap(map[string]string{
		"DIRWATCH_MAX_WATCHES":      "lots",
		"DIRWATCH_LOG_LEVEL":        "chatty",
		"DIRWATCH_SHUTDOWN_TIMEOUT": "soon",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sources[KeyMaxWatches] != SourceDefault || cfg.Sources[KeyLogLevel] != SourceDefault || cfg.Sources[KeyShutdownTimeout] != SourceDefault {
		t.Fatalf("expected invalid env values to be ignored, got %v", cfg.Sources)
	}
}

func TestLoadHelpPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	_, err := Load([]string{"--help"}, envMap(nil), &out)
	if !errors.Is(err, ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage: dirwatch") || !strings.Contains(out.String(), "--max-watches N") {
		t.Fatalf("unexpected help output:\n%s", out.String())
	}
}

func TestLoadVersionShortCircuits(t *testing.T) {
	cfg, err := Load([]string{"-v", "--config", "/does/not/exist"}, envMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.ShowVersion {
		t.Fatalf("expected ShowVersion")
	}
}
