package watcher

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"dirwatch/internal/fsutil"
	"dirwatch/internal/listing"
	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
)

// Registry maps canonical directory paths to their active watch. Watching a
// path twice is a no-op; only the first sink is attached.
type Registry struct {
	mutex      sync.Mutex
	entries    map[string]*registryEntry
	closed     bool
	backend    Backend
	logger     *logging.Logger
	metrics    *metrics.Registry
	maxWatches int
}

// registryEntry is inserted before the underlying watcher exists so that
// concurrent WatchDir calls for the same path wait on one creation.
type registryEntry struct {
	ready chan struct{}
	watch *dirWatch
	err   error
}

func NewRegistry(options Options) *Registry {
	backend := options.Backend
	if backend == nil {
		backend = FSNotifyBackend{}
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	registry := options.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	return &Registry{
		entries:    make(map[string]*registryEntry),
		backend:    backend,
		logger:     logger,
		metrics:    registry,
		maxWatches: options.MaxWatches,
	}
}

// WatchDir starts a shallow watch on path and delivers its normalized events
// to sink. It returns once the underlying watcher exists.
func (registry *Registry) WatchDir(path string, sink func(Event)) error {
	if registry == nil {
		return ErrRegistryClosed
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidPath)
	}
	if sink == nil {
		return fmt.Errorf("%w: sink is required", ErrInvalidPath)
	}
	canonical, err := fsutil.CanonicalPath(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}

	registry.mutex.Lock()
	if registry.closed {
		registry.mutex.Unlock()
		return ErrRegistryClosed
	}
	if existing, ok := registry.entries[canonical]; ok {
		registry.mutex.Unlock()
		<-existing.ready
		return existing.err
	}
	if registry.maxWatches > 0 && len(registry.entries) >= registry.maxWatches {
		registry.mutex.Unlock()
		registry.logWarn("watch limit reached", map[string]string{
			"path":        canonical,
			"max_watches": strconv.Itoa(registry.maxWatches),
		})
		return fmt.Errorf("%w (%d)", ErrMaxWatches, registry.maxWatches)
	}
	entry := &registryEntry{ready: make(chan struct{})}
	registry.entries[canonical] = entry
	registry.mutex.Unlock()

	watch, err := registry.open(canonical, sink)
	if err != nil {
		registry.mutex.Lock()
		if registry.entries[canonical] == entry {
			delete(registry.entries, canonical)
		}
		registry.mutex.Unlock()

		entry.err = err
		close(entry.ready)
		registry.logWarn("watch add failed", map[string]string{
			"path":  canonical,
			"error": err.Error(),
		})
		return err
	}

	watch.gone = registry.forget
	registry.mutex.Lock()
	entry.watch = watch
	registry.metrics.SetActiveWatches(registry.activeLocked())
	registry.mutex.Unlock()
	registry.metrics.IncWatchCreated()
	registry.logDebug("watch added", map[string]string{
		"path":     canonical,
		"children": watch.childCount(),
	})
	watch.start()
	close(entry.ready)
	return nil
}

func (registry *Registry) open(path string, sink func(Event)) (*dirWatch, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", listing.ErrNotADirectoryOrUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", listing.ErrNotADirectoryOrUnreadable, path)
	}

	source, err := registry.backend.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open watcher for %s: %w", path, err)
	}
	watch, err := newDirWatch(path, source, sink, registry.logger, registry.metrics)
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("%w: %w", listing.ErrNotADirectoryOrUnreadable, err)
	}
	return watch, nil
}

// UnwatchDir removes the watch for path and waits for the underlying watcher
// to be released. Unknown paths are ignored. The entry is removed even when
// the release fails; the failure is returned wrapped in ErrWatcherRelease.
func (registry *Registry) UnwatchDir(path string) error {
	if registry == nil {
		return nil
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidPath)
	}
	canonical, err := fsutil.CanonicalPath(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}

	registry.mutex.Lock()
	entry, ok := registry.entries[canonical]
	delete(registry.entries, canonical)
	registry.metrics.SetActiveWatches(registry.activeLocked())
	registry.mutex.Unlock()

	if !ok {
		return nil
	}
	if err := registry.release(canonical, entry); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWatcherRelease, canonical, err)
	}
	return nil
}

// UnwatchAll detaches every watch and releases them concurrently. Release
// failures are logged and otherwise ignored; the registry is empty on return.
func (registry *Registry) UnwatchAll() {
	if registry == nil {
		return
	}

	registry.mutex.Lock()
	detached := registry.entries
	registry.entries = make(map[string]*registryEntry)
	registry.metrics.SetActiveWatches(0)
	registry.mutex.Unlock()

	var wg sync.WaitGroup
	for path, entry := range detached {
		wg.Add(1)
		go func(path string, entry *registryEntry) {
			defer wg.Done()
			_ = registry.release(path, entry)
		}(path, entry)
	}
	wg.Wait()

	if len(detached) > 0 {
		registry.logInfo("all watches released", map[string]string{
			"count": strconv.Itoa(len(detached)),
		})
	}
}

// forget drops the entry of a watch whose directory is gone so a later
// WatchDir opens a fresh watcher. The entry is only dropped while it still
// belongs to watch. The release runs on its own goroutine since forget is
// called by the normalizer that close waits for.
func (registry *Registry) forget(watch *dirWatch) {
	registry.mutex.Lock()
	entry, ok := registry.entries[watch.path]
	if !ok || entry.watch != watch {
		registry.mutex.Unlock()
		return
	}
	delete(registry.entries, watch.path)
	registry.metrics.SetActiveWatches(registry.activeLocked())
	registry.mutex.Unlock()

	registry.logInfo("watched directory removed", map[string]string{"path": watch.path})
	go func() {
		_ = registry.release(watch.path, entry)
	}()
}

// activeLocked counts entries with an open watcher. Reservations still
// being opened are not counted.
func (registry *Registry) activeLocked() int {
	active := 0
	for _, entry := range registry.entries {
		if entry.watch != nil {
			active++
		}
	}
	return active
}

func (registry *Registry) release(path string, entry *registryEntry) error {
	<-entry.ready
	if entry.watch == nil {
		return nil
	}
	err := entry.watch.close()
	registry.metrics.IncWatchReleased(err)
	if err != nil {
		registry.logWarn("watch release failed", map[string]string{
			"path":  path,
			"error": err.Error(),
		})
		return err
	}
	registry.logDebug("watch removed", map[string]string{"path": path})
	return nil
}

// Close releases every watch and rejects later WatchDir calls.
func (registry *Registry) Close() error {
	if registry == nil {
		return nil
	}
	registry.mutex.Lock()
	registry.closed = true
	registry.mutex.Unlock()
	registry.UnwatchAll()
	return nil
}

// Watched returns the watched canonical paths in sorted order.
func (registry *Registry) Watched() []string {
	if registry == nil {
		return nil
	}
	registry.mutex.Lock()
	paths := make([]string, 0, len(registry.entries))
	for path := range registry.entries {
		paths = append(paths, path)
	}
	registry.mutex.Unlock()
	sort.Strings(paths)
	return paths
}

func (registry *Registry) Len() int {
	if registry == nil {
		return 0
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return len(registry.entries)
}

func (registry *Registry) IsWatched(path string) bool {
	if registry == nil {
		return false
	}
	canonical, err := fsutil.CanonicalPath(path)
	if err != nil {
		return false
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	_, ok := registry.entries[canonical]
	return ok
}

func (registry *Registry) logInfo(message string, fields map[string]string) {
	registry.logger.Info(message, logging.Fields("watcher", fields))
}

func (registry *Registry) logWarn(message string, fields map[string]string) {
	registry.logger.Warn(message, logging.Fields("watcher", fields))
}

func (registry *Registry) logDebug(message string, fields map[string]string) {
	registry.logger.Debug(message, logging.Fields("watcher", fields))
}
