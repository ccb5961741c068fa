package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dirwatch/internal/logging"
)

type ManagedServer struct {
	Name     string
	Serve    func() error
	Shutdown func(context.Context) error
}

// ServerRunner serves a set of servers and stops them together.
type ServerRunner struct {
	Logger          *logging.Logger
	ShutdownTimeout time.Duration
}

type serveResult struct {
	name string
	err  error
}

// Run serves every server until stop is done or one of them returns, then
// shuts all of them down within ShutdownTimeout. It returns the first
// server failure; a server closed by shutdown is not a failure.
func (runner *ServerRunner) Run(stop context.Context, servers ...ManagedServer) error {
	results := make(chan serveResult, len(servers))
	running := 0
	for _, server := range servers {
		if server.Serve == nil {
			continue
		}
		running++
		go func() {
			results <- serveResult{name: server.Name, err: server.Serve()}
		}()
	}
	if running == 0 {
		return nil
	}

	var failure error
	select {
	case result := <-results:
		running--
		failure = runner.check(result)
	case <-stop.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), runner.shutdownTimeout())
	defer cancel()
	for _, server := range servers {
		if server.Shutdown == nil {
			continue
		}
		if err := server.Shutdown(ctx); err != nil {
			runner.Logger.Warn("server shutdown failed", logging.Fields("server", map[string]string{
				"server": server.Name,
				"error":  err.Error(),
			}))
		}
	}

	for ; running > 0; running-- {
		select {
		case result := <-results:
			if err := runner.check(result); failure == nil {
				failure = err
			}
		case <-ctx.Done():
			runner.Logger.Warn("servers still running after shutdown timeout", logging.Fields("server", map[string]string{
				"pending": fmt.Sprint(running),
			}))
			return failure
		}
	}
	return failure
}

func (runner *ServerRunner) shutdownTimeout() time.Duration {
	if runner.ShutdownTimeout <= 0 {
		return httpServerShutdownTimeout
	}
	return runner.ShutdownTimeout
}

// check logs and wraps a serve result that is a real failure.
func (runner *ServerRunner) check(result serveResult) error {
	if result.err == nil || errors.Is(result.err, http.ErrServerClosed) {
		return nil
	}
	runner.Logger.Error("server stopped", logging.Fields("server", map[string]string{
		"server": result.name,
		"error":  result.err.Error(),
	}))
	return fmt.Errorf("%s server: %w", result.name, result.err)
}
