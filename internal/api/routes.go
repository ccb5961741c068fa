package api

import (
	"net/http"
	"time"

	"dirwatch/internal/listing"
	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
	"dirwatch/internal/watcher"
)

// RouteOptions carries the dependencies shared by every route.
type RouteOptions struct {
	Hub             *watcher.EventHub
	Logger          *logging.Logger
	Metrics         *metrics.Registry
	AuthToken       string
	AllowedOrigins  []string
	Roots           []string
	ReadConcurrency int
	ReadTimeout     time.Duration
	Read            func(string) (listing.Entry, error)
}

func RegisterRoutes(mux *http.ServeMux, options RouteOptions) {
	rest := &RestHandler{
		Hub:             options.Hub,
		Logger:          options.Logger,
		Metrics:         options.Metrics,
		Roots:           options.Roots,
		ReadConcurrency: options.ReadConcurrency,
		ReadTimeout:     options.ReadTimeout,
		Read:            options.Read,
	}
	logger := options.Logger
	token := options.AuthToken

	mux.Handle("/api/directory", loggingMiddleware(logger, restHandler(token, rest.handleDirectory)))
	mux.Handle("/api/directory/watch", loggingMiddleware(logger, restHandler(token, rest.handleWatch)))
	mux.Handle("/api/directory/unwatch", loggingMiddleware(logger, restHandler(token, rest.handleUnwatch)))
	mux.Handle("/api/status", loggingMiddleware(logger, restHandler(token, rest.handleStatus)))
	mux.Handle("/api/logs", loggingMiddleware(logger, restHandler(token, rest.handleLogs)))

	mux.Handle("/ws/events", securityHeadersMiddleware(cacheControlNoStore, &EventsHandler{
		Hub:            options.Hub,
		Logger:         logger,
		AuthToken:      token,
		AllowedOrigins: options.AllowedOrigins,
	}))
	mux.Handle("/api/events/stream", securityHeadersMiddleware(cacheControlNoStore, &EventsSSEHandler{
		Hub:       options.Hub,
		Logger:    logger,
		AuthToken: token,
	}))

	registry := options.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	mux.Handle("/metrics", restHandler(token, func(w http.ResponseWriter, r *http.Request) *apiError {
		registry.Handler().ServeHTTP(w, r)
		return nil
	}))
}
