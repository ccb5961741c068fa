package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dirwatch/internal/listing"
	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
	"dirwatch/internal/version"
	"dirwatch/internal/watcher"
)

// RestHandler serves the directory listing and watch endpoints.
type RestHandler struct {
	Hub             *watcher.EventHub
	Logger          *logging.Logger
	Metrics         *metrics.Registry
	Roots           []string
	ReadConcurrency int
	ReadTimeout     time.Duration
	Read            func(string) (listing.Entry, error)
}

// handleDirectory lists every requested directory one level deep. Paths
// that cannot be read are left out rather than failing the request.
func (h *RestHandler) handleDirectory(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}

	paths := requestedPaths(r)
	if len(paths) == 0 {
		paths = h.Roots
	}

	ctx := r.Context()
	if h.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ReadTimeout)
		defer cancel()
	}
	results := listing.ReadMany(ctx, paths, listing.BatchOptions{
		Concurrency: h.ReadConcurrency,
		Read:        h.Read,
	})

	failed := 0
	for _, result := range results {
		if result.Err == nil {
			continue
		}
		failed++
		h.logDebug("directory read failed", map[string]string{
			"path":  result.Path,
			"error": result.Err.Error(),
		})
	}
	h.Metrics.RecordDirectoryReads(len(results)-failed, failed)

	writeJSON(w, http.StatusOK, listing.Successful(results))
	return nil
}

func (h *RestHandler) handleWatch(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireHub(); err != nil {
		return err
	}

	var request watchRequest
	if err := decodeJSONBody(r, &request); err != nil {
		return err
	}
	path := strings.TrimSpace(request.Path)
	if path == "" {
		return &apiError{Status: http.StatusBadRequest, Message: `"path" must be provided`}
	}

	if err := h.Hub.Watch(path); err != nil {
		h.logWarn("watch failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return &apiError{Status: http.StatusInternalServerError, Message: "unable to watch " + path, Code: watchErrorCode(err)}
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

// handleUnwatch stops one watch, or every watch when no path is given.
func (h *RestHandler) handleUnwatch(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPut {
		return methodNotAllowed(w, "PUT")
	}
	if err := h.requireHub(); err != nil {
		return err
	}

	var request watchRequest
	if err := decodeJSONBody(r, &request); err != nil {
		return err
	}
	path := strings.TrimSpace(request.Path)
	if path == "" {
		h.Hub.UnwatchAll()
		w.WriteHeader(http.StatusOK)
		return nil
	}

	if err := h.Hub.Unwatch(path); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "unable to unwatch " + path, Code: watchErrorCode(err)}
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if err := h.requireHub(); err != nil {
		return err
	}

	watched := h.Hub.Registry().Watched()
	published, dropped := h.Hub.Stats()
	versionInfo := version.GetVersionInfo()
	roots := h.Roots
	if roots == nil {
		roots = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		WatchedCount:    len(watched),
		Watched:         watched,
		Roots:           roots,
		SubscriberCount: h.Hub.SubscriberCount(),
		EventsPublished: published,
		EventsDropped:   dropped,
		ServerTime:      time.Now().UTC(),
		Version:         versionInfo.Version,
		Major:           versionInfo.Major,
		Minor:           versionInfo.Minor,
		Patch:           versionInfo.Patch,
		Built:           versionInfo.Built,
		GitCommit:       versionInfo.GitCommit,
	})
	return nil
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if h.Logger == nil || h.Logger.Buffer() == nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "log buffer unavailable"}
	}
	query, err := parseLogQuery(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, filterLogEntries(h.Logger.Buffer().List(), query))
	return nil
}

func (h *RestHandler) requireHub() *apiError {
	if h.Hub == nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "watch hub unavailable"}
	}
	return nil
}

// requestedPaths accepts both the bracketed array form and repeated plain
// values. Commas are legal in paths, so values are never split.
func requestedPaths(r *http.Request) []string {
	values := r.URL.Query()
	raw := append([]string{}, values["paths[]"]...)
	raw = append(raw, values["paths"]...)

	paths := make([]string, 0, len(raw))
	for _, value := range raw {
		if strings.TrimSpace(value) == "" {
			continue
		}
		paths = append(paths, value)
	}
	return paths
}

func parseLogQuery(r *http.Request) (logQuery, *apiError) {
	values := r.URL.Query()
	query := logQuery{
		Limit: 100,
	}

	if rawLimit := strings.TrimSpace(values.Get("limit")); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		query.Limit = limit
	}

	if rawSince := strings.TrimSpace(values.Get("since")); rawSince != "" {
		parsed, err := time.Parse(time.RFC3339, rawSince)
		if err != nil {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid since timestamp"}
		}
		query.Since = &parsed
	}

	if rawLevel := strings.TrimSpace(values.Get("level")); rawLevel != "" {
		level, ok := logging.ParseLevel(rawLevel)
		if !ok {
			return query, &apiError{Status: http.StatusBadRequest, Message: "invalid log level"}
		}
		query.Level = level
	}

	return query, nil
}

func filterLogEntries(entries []logging.LogEntry, query logQuery) []logging.LogEntry {
	filtered := make([]logging.LogEntry, 0, len(entries))
	for _, entry := range entries {
		if query.Level != "" && !logging.LevelAtLeast(entry.Level, query.Level) {
			continue
		}
		if query.Since != nil && entry.Timestamp.Before(*query.Since) {
			continue
		}
		filtered = append(filtered, entry)
	}

	if query.Limit > 0 && len(filtered) > query.Limit {
		filtered = filtered[len(filtered)-query.Limit:]
	}

	return filtered
}

func (h *RestHandler) logDebug(message string, fields map[string]string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Debug(message, logging.Fields("api", fields))
}

func (h *RestHandler) logWarn(message string, fields map[string]string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Warn(message, logging.Fields("api", fields))
}
