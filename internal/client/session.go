package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"dirwatch/internal/contentcache"
	"dirwatch/internal/fsutil"
	"dirwatch/internal/listing"
	"dirwatch/internal/logging"
	"dirwatch/internal/watcher"
)

const disconnectCleanupTimeout = 5 * time.Second

// Session mirrors a server's watched directories into a local content
// cache. Expanding a directory loads its listing and starts a watch;
// collapsing it stops the watch and forgets the listing.
type Session struct {
	client   *Client
	cache    *contentcache.Cache
	logger   *logging.Logger
	onChange func(watcher.Event)

	mu       sync.Mutex
	roots    []listing.Entry
	expanded map[string]struct{}
}

type SessionOptions struct {
	Cache  *contentcache.Cache
	Logger *logging.Logger
	// OnChange runs after an event changed the cache.
	OnChange func(watcher.Event)
}

func NewSession(client *Client, options SessionOptions) *Session {
	cache := options.Cache
	if cache == nil {
		cache = contentcache.New()
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Session{
		client:   client,
		cache:    cache,
		logger:   logger,
		onChange: options.OnChange,
		expanded: make(map[string]struct{}),
	}
}

func (s *Session) Cache() *contentcache.Cache {
	return s.cache
}

// Start loads the server's root directories into the cache and expands the
// first one.
func (s *Session) Start(ctx context.Context) ([]listing.Entry, error) {
	entries, err := s.client.FetchDirs(ctx)
	if err != nil {
		return nil, err
	}

	roots := make([]listing.Entry, 0, len(entries))
	for _, entry := range entries {
		s.cache.Set(entry.Path, entry.Contents)
		entry.Contents = nil
		roots = append(roots, entry)
	}

	s.mu.Lock()
	s.roots = roots
	s.mu.Unlock()

	if len(roots) > 0 {
		if err := s.Expand(ctx, roots[0].Path); err != nil {
			return roots, err
		}
	}
	return roots, nil
}

func (s *Session) Roots() []listing.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]listing.Entry(nil), s.roots...)
}

// Expand fetches a directory and asks the server to watch it. A listing
// that arrives after the directory was collapsed again is discarded.
func (s *Session) Expand(ctx context.Context, path string) error {
	canonical, err := fsutil.CanonicalPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.expanded[canonical] = struct{}{}
	s.mu.Unlock()

	entries, fetchErr := s.client.FetchDirs(ctx, canonical)
	if fetchErr == nil && len(entries) > 0 {
		s.mu.Lock()
		if _, ok := s.expanded[canonical]; ok {
			s.cache.Set(entries[0].Path, entries[0].Contents)
		}
		s.mu.Unlock()
	}

	watchErr := s.client.Watch(ctx, canonical)
	return errors.Join(fetchErr, watchErr)
}

func (s *Session) Collapse(ctx context.Context, path string) error {
	canonical, err := fsutil.CanonicalPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.expanded, canonical)
	s.cache.Drop(canonical)
	s.mu.Unlock()

	return s.client.Unwatch(ctx, canonical)
}

func (s *Session) CollapseAll(ctx context.Context) error {
	s.reset()
	return s.client.UnwatchAll(ctx)
}

func (s *Session) IsExpanded(path string) bool {
	canonical, err := fsutil.CanonicalPath(path)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.expanded[canonical]
	return ok
}

func (s *Session) Expanded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.expanded))
	for path := range s.expanded {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Follow applies events from stream to the cache until the stream ends or
// ctx is cancelled. When the server goes away every watch is released and
// the cache emptied, so a reconnect starts from a clean slate.
func (s *Session) Follow(ctx context.Context, stream *Stream) error {
	for {
		select {
		case <-ctx.Done():
			_ = stream.Close()
			return ctx.Err()
		case event, ok := <-stream.Events():
			if !ok {
				return s.disconnected(stream.Err())
			}
			if s.cache.Apply(event) {
				s.logger.Debug("content cache updated", logging.Fields("client", map[string]string{
					"type":   string(event.Kind),
					"parent": event.Parent,
					"path":   event.Path,
				}))
				if s.onChange != nil {
					s.onChange(event)
				}
			}
			if event.Kind == watcher.KindDirUnlink {
				s.forgetRemoved(ctx, event.Path)
			}
		}
	}
}

// forgetRemoved collapses every expanded directory at or below a removed
// directory and releases its server-side watch.
func (s *Session) forgetRemoved(ctx context.Context, removed string) {
	s.mu.Lock()
	var gone []string
	for path := range s.expanded {
		if fsutil.IsWithin(removed, path) {
			gone = append(gone, path)
			delete(s.expanded, path)
		}
	}
	s.mu.Unlock()

	sort.Strings(gone)
	for _, path := range gone {
		if err := s.client.Unwatch(ctx, path); err != nil {
			s.logger.Warn("unwatch of removed directory failed", logging.Fields("client", map[string]string{
				"path":  path,
				"error": err.Error(),
			}))
		}
	}
}

func (s *Session) disconnected(cause error) error {
	fields := map[string]string{}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	s.logger.Warn("event stream disconnected", logging.Fields("client", fields))

	s.reset()
	ctx, cancel := context.WithTimeout(context.Background(), disconnectCleanupTimeout)
	defer cancel()
	if err := s.client.UnwatchAll(ctx); err != nil {
		s.logger.Debug("unwatch all after disconnect failed", logging.Fields("client", map[string]string{
			"error": err.Error(),
		}))
	}
	return cause
}

func (s *Session) reset() {
	s.mu.Lock()
	s.expanded = make(map[string]struct{})
	s.cache.Reset()
	s.mu.Unlock()
}
