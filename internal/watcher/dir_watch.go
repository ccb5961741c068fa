package watcher

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
	"github.com/fsnotify/fsnotify"
)

// dirWatch normalizes the events of one Source. children records the kind of
// every direct child because removal events do not say whether the entry was
// a directory.
type dirWatch struct {
	path     string
	source   Source
	sink     func(Event)
	children map[string]bool
	logger   *logging.Logger
	metrics  *metrics.Registry
	now      func() time.Time
	// gone is called from the normalizer goroutine after the watched
	// directory itself was removed or renamed away.
	gone func(*dirWatch)

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newDirWatch(path string, source Source, sink func(Event), logger *logging.Logger, registry *metrics.Registry) (*dirWatch, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	children := make(map[string]bool, len(entries))
	for _, entry := range entries {
		children[entry.Name()] = entry.IsDir()
	}
	return &dirWatch{
		path:     path,
		source:   source,
		sink:     sink,
		children: children,
		logger:   logger,
		metrics:  registry,
		now:      func() time.Time { return time.Now().UTC() },
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

func (watch *dirWatch) start() {
	go watch.run()
}

func (watch *dirWatch) run() {
	defer close(watch.stopped)
	events := watch.source.Events()
	errs := watch.source.Errors()
	for {
		select {
		case raw, ok := <-events:
			if !ok {
				return
			}
			watch.handle(raw)
		case err, ok := <-errs:
			if !ok {
				return
			}
			watch.metrics.IncWatchError()
			watch.logWarn("watcher error", map[string]string{
				"error": err.Error(),
			})
		case <-watch.done:
			return
		}
	}
}

// close stops the normalizer and releases the Source. It returns after the
// normalizer goroutine has exited, so the sink is never called afterwards.
func (watch *dirWatch) close() error {
	watch.closeOnce.Do(func() {
		close(watch.done)
		watch.closeErr = watch.source.Close()
		<-watch.stopped
	})
	return watch.closeErr
}

func (watch *dirWatch) handle(raw fsnotify.Event) {
	name := filepath.Clean(raw.Name)
	if name == watch.path {
		if raw.Has(fsnotify.Remove) || raw.Has(fsnotify.Rename) {
			watch.children = make(map[string]bool)
			watch.emit(KindDirUnlink, watch.path)
			if watch.gone != nil {
				watch.gone(watch)
			}
		}
		return
	}
	if filepath.Dir(name) != watch.path {
		return
	}
	base := filepath.Base(name)

	if raw.Has(fsnotify.Create) {
		watch.handleCreate(name, base)
	}
	if raw.Has(fsnotify.Remove) || raw.Has(fsnotify.Rename) {
		watch.handleRemove(name, base)
	}
}

func (watch *dirWatch) handleCreate(name, base string) {
	info, err := os.Lstat(name)
	if err != nil {
		// Gone before it could be classified; the matching removal is
		// ignored as well since the name never entered the index.
		watch.logDebug("created entry vanished", map[string]string{
			"entry": name,
			"error": err.Error(),
		})
		return
	}
	isDir := info.IsDir()
	if known, ok := watch.children[base]; ok {
		if known == isDir {
			return
		}
		// Replaced in place by an entry of the other kind.
		watch.emit(unlinkKind(known), name)
	}
	watch.children[base] = isDir
	watch.emit(addKind(isDir), name)
}

func (watch *dirWatch) handleRemove(name, base string) {
	isDir, ok := watch.children[base]
	if !ok {
		return
	}
	delete(watch.children, base)
	watch.emit(unlinkKind(isDir), name)
}

func (watch *dirWatch) emit(kind Kind, path string) {
	watch.metrics.IncDirEvent(string(kind))
	watch.sink(Event{
		Kind:       kind,
		Parent:     watch.path,
		Path:       path,
		OccurredAt: watch.now(),
	})
}

func addKind(isDir bool) Kind {
	if isDir {
		return KindDirAdd
	}
	return KindFileAdd
}

func unlinkKind(isDir bool) Kind {
	if isDir {
		return KindDirUnlink
	}
	return KindFileUnlink
}

func (watch *dirWatch) childCount() string {
	return strconv.Itoa(len(watch.children))
}

func (watch *dirWatch) logWarn(message string, fields map[string]string) {
	if watch.logger == nil {
		return
	}
	fields["path"] = watch.path
	watch.logger.Warn(message, logging.Fields("watcher", fields))
}

func (watch *dirWatch) logDebug(message string, fields map[string]string) {
	if watch.logger == nil {
		return
	}
	fields["path"] = watch.path
	watch.logger.Debug(message, logging.Fields("watcher", fields))
}
