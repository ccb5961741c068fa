package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dirwatch/internal/api"
	"dirwatch/internal/cli"
	"dirwatch/internal/config"
	"dirwatch/internal/fsutil"
	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
	"dirwatch/internal/version"
	"dirwatch/internal/watcher"
)

const httpServerShutdownTimeout = 10 * time.Second

func runServer(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args, getenv, stdout)
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if cfg.ShowVersion {
		cli.WriteVersion(stdout, "dirwatch")
		return 0
	}

	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), cfg.LogLevel, stderr)
	logStartupConfig(logger, cfg)
	logVersionInfo(logger)

	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	stopSignals := watchShutdownSignals(logger, cancel, signals)
	defer stopSignals()

	if err := serve(stop, cfg, logger, nil); err != nil {
		logger.Error("dirwatch stopped", map[string]string{
			"error": err.Error(),
		})
		return 1
	}
	return 0
}

// serve runs the HTTP server until stop is cancelled or the server fails,
// then releases every watch. ready, when set, receives the bound address.
func serve(stop context.Context, cfg config.Config, logger *logging.Logger, ready func(addr string)) error {
	roots := resolveRoots(cfg.Roots, logger)
	registry := metrics.NewRegistry()

	// The hub follows stop so open event streams end before the HTTP
	// server waits for in-flight requests.
	hub := watcher.NewEventHub(stop, watcher.HubOptions{
		Logger:               logger,
		Metrics:              registry,
		MaxWatches:           cfg.MaxWatches,
		SubscriberBufferSize: cfg.SubscriberBuffer,
	})

	coordinator := newShutdownCoordinator(logger)
	coordinator.Add("watches", func(context.Context) error {
		hub.UnwatchAll()
		return nil
	})
	coordinator.Add("event hub", func(context.Context) error {
		return hub.Close()
	})

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.RouteOptions{
		Hub:             hub,
		Logger:          logger,
		Metrics:         registry,
		AuthToken:       cfg.AuthToken,
		AllowedOrigins:  cfg.AllowedOrigins,
		Roots:           roots,
		ReadConcurrency: cfg.ReadConcurrency,
	})

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		_ = coordinator.Run(context.Background())
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	address := listener.Addr().String()
	logger.Info("dirwatch listening", map[string]string{
		"addr":    address,
		"roots":   strings.Join(roots, ","),
		"version": version.GetVersionInfo().Version,
	})
	if ready != nil {
		ready(address)
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = httpServerShutdownTimeout
	}
	runner := &ServerRunner{
		Logger:          logger,
		ShutdownTimeout: timeout,
	}
	serverErr := runner.Run(stop, ManagedServer{
		Name: "http",
		Serve: func() error {
			return server.Serve(listener)
		},
		Shutdown: server.Shutdown,
	})

	shutdownContext, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	shutdownErr := coordinator.Run(shutdownContext)

	return errors.Join(serverErr, shutdownErr)
}

// resolveRoots canonicalizes the configured roots. Roots that cannot be
// listed are kept so they show up once they exist, but are reported.
func resolveRoots(values []string, logger *logging.Logger) []string {
	roots := fsutil.CanonicalPaths(values)
	for _, root := range roots {
		info, err := os.Stat(root)
		if err == nil && info.IsDir() {
			continue
		}
		fields := map[string]string{"root": root}
		if err != nil {
			fields["error"] = err.Error()
		}
		logger.Warn("root directory unavailable", logging.Fields("server", fields))
	}
	if len(roots) == 0 {
		logger.Warn("no root directories configured", nil)
	} else {
		logger.Info("root directories configured", map[string]string{
			"count": strconv.Itoa(len(roots)),
		})
	}
	return roots
}
